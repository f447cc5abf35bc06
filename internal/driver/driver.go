// Package driver replays the xlog JSON-Lines stream produced by
// internal/sched into measurement.Measurement records: it is the eNB-specific
// mapping layer that turns Amarisoft's "stats"/"x.drb_stats" counters into
// the 3GPP-named fields package measurement defines, analogous to how
// Amarisoft's own xlte.amari.kpi.LogMeasure turns enb.xlog into
// xlte.kpi.Measurement.
package driver

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/navytux/xlte/pkg/measurement"
	"github.com/navytux/xlte/pkg/measurementlog"
	"github.com/navytux/xlte/pkg/xlogreader"
)

// LogError reports a data-validation failure found while building a
// Measurement from the underlying xlog stream, e.g. a cumulative counter
// that decreased between two "stats" polls. It is never fatal to the
// Driver: call Read again to continue past it.
type LogError struct {
	Timestamp float64 // seconds since epoch; NaN if not tied to one entry
	Reason    string
}

func (e *LogError) Error() string {
	t := "?"
	if !math.IsNaN(e.Timestamp) {
		t = fmt.Sprintf("%v", e.Timestamp)
	}
	return fmt.Sprintf("t%s: %s", t, e.Reason)
}

// Driver turns a sequence of xlogreader entries into measurement.Measurement
// records, one per "stats" polling period.
//
// Periods are organized around "stats" polls; a Measurement for period
// [Sx, Sx+1) is only emitted after Sx+2 has been read, so that fini-type
// counters reported in the wrong period by the base station's own
// aggregation (a message whose processing straddles a stats poll) can be
// shifted back onto the period they logically belong to - see mInitFini.
//
//	            fini adjust
//	           -------------
//	          '             '
//	    Sx    v     Sx+1    '   Sx+2
//	 ────|───────────|───────────|────
//	      Measurement Measurement
//	           X          X+1
type Driver struct {
	r *xlogreader.Reader

	// estats is the last xlog entry that bounds a period: nil, a "stats"
	// *xlogreader.Message, a non-sync *xlogreader.Event, or an error
	// (io.EOF or *LogError).
	estats any
	// m is the Measurement being prepared for [estats_prev, estats).
	m *measurement.Measurement
	// mNext is the Measurement being prepared for [estats, estats_next).
	mNext *measurement.Measurement
	// drbStats is the last x.drb_stats reply seen, reset whenever estats
	// moves past an event or an error.
	drbStats *xlogreader.Message
}

// New returns a Driver that reads Measurements from r.
func New(r *xlogreader.Reader) *Driver {
	return &Driver{r: r}
}

// Read returns the next Measurement, or io.EOF once the underlying xlog
// is exhausted. A *LogError is returned with a zero Measurement on a
// data-validation failure; the Driver remains usable afterwards.
func (d *Driver) Read() (measurement.Measurement, error) {
	for {
		// flush the queue at an error or a non-sync event.
		if isEventOrErr(d.estats) {
			if d.m != nil {
				m := *d.m
				d.m = nil
				return m, nil
			}
			if err, ok := d.estats.(error); ok {
				d.estats = nil
				if err == io.EOF {
					return measurement.Measurement{}, io.EOF
				}
				return measurement.Measurement{}, err
			}
			// d.estats is a non-sync Event: fall through and keep reading -
			// d.mNext, if any, stays initialized with X.Tstart = its time.
		}

		var x any
		entry, err := d.r.Read()
		switch {
		case err == io.EOF:
			x = io.EOF
		case err != nil:
			// e.g. a *xlogreader.ParseError or *xlogreader.LOSError.
			x = &LogError{Timestamp: math.NaN(), Reason: err.Error()}
		default:
			x = entry
		}

		// ignore sync events - they carry no measurement data.
		if _, ok := x.(*xlogreader.SyncEvent); ok {
			continue
		}

		// handle messages that update the in-progress Measurement.
		var msg *xlogreader.Message
		if m, ok := x.(*xlogreader.Message); ok {
			msg = m
			if msg.Message == "x.drb_stats" {
				d.handleDRBStats(msg)
				continue
			}
			if msg.Message != "stats" {
				continue // ignore other messages, e.g. ue_get/config_get
			}
		}

		// x is now an error, a non-sync Event, or a "stats" Message:
		// finalize X.δT for mNext, then shift m <- d.m <- d.mNext <-
		// (new Measurement, or nil on error).
		if d.mNext != nil {
			if _, ok := x.(error); ok {
				d.mNext = nil
			} else {
				d.mNext.DT = entryTimestamp(x) - d.mNext.Tstart
			}
		}
		mPrev := d.m
		d.m = d.mNext
		if _, ok := x.(error); ok {
			d.mNext = nil
		} else {
			nm := measurement.New()
			nm.Tstart = entryTimestamp(x)
			d.mNext = &nm
		}

		if ev, ok := x.(*xlogreader.Event); ok {
			d.estats = ev
			d.drbStats = nil
		} else if lerr, ok := x.(error); ok {
			d.estats = lerr
			d.drbStats = nil
		} else {
			d.handleStats(msg, mPrev)
		}

		// mPrev's period closes here: a stats transition just gave it its
		// final fini/init correction, or the chain broke (event/error) and
		// no further correction will ever come - either way it is done.
		if mPrev != nil {
			m := *mPrev
			return m, nil
		}
		continue
	}
}

func isEventOrErr(x any) bool {
	switch x.(type) {
	case *xlogreader.Event, error:
		return true
	}
	return false
}

func entryTimestamp(x any) float64 {
	switch v := x.(type) {
	case *xlogreader.Message:
		return v.Timestamp
	case *xlogreader.Event:
		return v.Timestamp
	}
	return math.NaN()
}

// handleStats builds d.m's counters from the δ between the previous
// "stats" poll (kept in d.estats) and stats, applying fini/init
// correction against mPrev - the Measurement for the period preceding
// d.m's.
//
// Only single-cell configurations are supported: S1-related counters
// arrive as eNB-global in Amarisoft stats output, so there is no way to
// tell which cell they belong to when more than one is configured.
func (d *Driver) handleStats(stats *xlogreader.Message, mPrev *measurement.Measurement) {
	if lerr := statsCheck(stats); lerr != nil {
		d.estats = lerr
		return
	}

	estatsPrev := d.estats
	d.estats = stats

	statsPrev, ok := estatsPrev.(*xlogreader.Message)
	if !ok {
		return // first stats after e.g. service attach - no period to close yet
	}

	m := *d.m
	var p *measurement.Measurement
	if mPrev != nil {
		pc := *mPrev
		p = &pc
	}

	δcc := func(counter string) (float64, *LogError) {
		old := statsCC(statsPrev.Raw, counter)
		neu := statsCC(stats.Raw, counter)
		if neu < old {
			return 0, &LogError{Timestamp: stats.Timestamp,
				Reason: fmt.Sprintf("cc %s↓  (%v → %v)", counter, old, neu)}
		}
		return neu - old, nil
	}

	// mInitFini populates m's init/fini pair and, mirroring how the base
	// station's own counters lag events by up to one polling period,
	// shifts as much of m's fini as possible back onto p's - exposing
	// fini events that logically belong to the previous period without
	// ever inventing data that was not actually reported.
	mInitFini := func(mInit, mFini, pInit, pFini *float64, vinit, vfini float64) {
		*mInit = vinit
		*mFini = vfini
		if pInit != nil {
			if *pFini < *pInit {
				shift := math.Min(*pInit-*pFini, *mFini)
				*pFini += shift
				*mFini -= shift
			}
		}
		if *mFini > *mInit {
			*mFini = *mInit
		}
	}

	rrcAtt, lerr := δcc("rrc_connection_request")
	if lerr != nil {
		d.estats = lerr
		return
	}
	rrcSucc, lerr := δcc("rrc_connection_setup_complete")
	if lerr != nil {
		d.estats = lerr
		return
	}
	var pRRCAtt, pRRCSucc *float64
	if p != nil {
		pRRCAtt, pRRCSucc = &p.RRCConnEstabAtt.Sum, &p.RRCConnEstabSucc.Sum
	}
	mInitFini(&m.RRCConnEstabAtt.Sum, &m.RRCConnEstabSucc.Sum, pRRCAtt, pRRCSucc, rrcAtt, rrcSucc)

	s1Att, lerr := δcc("s1_initial_context_setup_request")
	if lerr != nil {
		d.estats = lerr
		return
	}
	s1Succ, lerr := δcc("s1_initial_context_setup_response")
	if lerr != nil {
		d.estats = lerr
		return
	}
	var pS1Att, pS1Succ *float64
	if p != nil {
		pS1Att, pS1Succ = &p.S1SIGConnEstabAtt, &p.S1SIGConnEstabSucc
	}
	mInitFini(&m.S1SIGConnEstabAtt, &m.S1SIGConnEstabSucc, pS1Att, pS1Succ, s1Att, s1Succ)

	// ERAB initial establishment reuses the S1 context-setup δ - a base
	// station message can carry several ERABs, so this is only an
	// approximation (FIXME, same limitation as the source this is
	// grounded on).
	var pEIAtt, pEISucc *float64
	if p != nil {
		pEIAtt, pEISucc = &p.ERABEstabInitAttNbr.Sum, &p.ERABEstabInitSuccNbr.Sum
	}
	mInitFini(&m.ERABEstabInitAttNbr.Sum, &m.ERABEstabInitSuccNbr.Sum, pEIAtt, pEISucc, s1Att, s1Succ)

	erabAddAtt, lerr := δcc("s1_erab_setup_request")
	if lerr != nil {
		d.estats = lerr
		return
	}
	erabAddSucc, lerr := δcc("s1_erab_setup_response")
	if lerr != nil {
		d.estats = lerr
		return
	}
	var pEAAtt, pEASucc *float64
	if p != nil {
		pEAAtt, pEASucc = &p.ERABEstabAddAttNbr.Sum, &p.ERABEstabAddSuccNbr.Sum
	}
	mInitFini(&m.ERABEstabAddAttNbr.Sum, &m.ERABEstabAddSuccNbr.Sum, pEAAtt, pEASucc, erabAddAtt, erabAddSucc)

	*d.m = m
	if mPrev != nil {
		*mPrev = *p
	}
}

// statsCheck verifies that stats has the structure handleStats needs:
// exactly one cell, with both the eNB-global and the per-cell
// counters.messages tables present.
func statsCheck(stats *xlogreader.Message) *LogError {
	cells, ok := stats.Raw["cells"].(map[string]any)
	if !ok {
		return &LogError{Timestamp: stats.Timestamp, Reason: "stats: no `cells`"}
	}
	if len(cells) != 1 {
		return &LogError{Timestamp: stats.Timestamp,
			Reason: fmt.Sprintf("stats describes %d cells;  but only single-cell configurations are supported", len(cells))}
	}
	var cellName string
	var cell map[string]any
	for name, v := range cells {
		cellName = name
		cm, ok := v.(map[string]any)
		if !ok {
			return &LogError{Timestamp: stats.Timestamp, Reason: fmt.Sprintf("stats: cells.%s not an object", name)}
		}
		cell = cm
	}
	if !hasMessages(stats.Raw) {
		return &LogError{Timestamp: stats.Timestamp, Reason: "stats: no `counters.messages`"}
	}
	if !hasMessages(cell) {
		return &LogError{Timestamp: stats.Timestamp, Reason: fmt.Sprintf("stats: no `cells.%s.counters.messages`", cellName)}
	}
	return nil
}

func hasMessages(d map[string]any) bool {
	counters, ok := d["counters"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = counters["messages"].(map[string]any)
	return ok
}

// statsCC returns the named cumulative counter from a "stats" reply
// already verified by statsCheck. rrc_* counters are per-cell; everything
// else is eNB-global. Absent counters read as 0 (the base station omits
// zero-valued counters from its reply).
func statsCC(raw map[string]any, counter string) float64 {
	cells, _ := raw["cells"].(map[string]any)
	var cell map[string]any
	for _, v := range cells {
		cell, _ = v.(map[string]any)
		break
	}

	var ccDict map[string]any
	if strings.HasPrefix(counter, "rrc_") {
		ccDict, _ = cell["counters"].(map[string]any)
	} else {
		ccDict, _ = raw["counters"].(map[string]any)
	}
	messages, _ := ccDict["messages"].(map[string]any)
	if v, ok := messages[counter]; ok {
		return floatOf(v)
	}
	return 0
}

// handleDRBStats attributes one x.drb_stats reply's per-QCI transmission
// totals to whichever of d.m / d.mNext it overlaps with for at least half
// of its own coverage - a drb_stats reply never perfectly aligns with a
// stats-bounded period, so this picks the one period it is most
// representative of rather than splitting it.
func (d *Driver) handleDRBStats(drbStats *xlogreader.Message) {
	prev := d.drbStats
	d.drbStats = drbStats
	if prev == nil {
		return // first drb_stats after an event - unknown coverage
	}

	τLo, τHi := prev.Timestamp, drbStats.Timestamp
	δτ := τHi - τLo
	if !(δτ > 0) {
		return
	}

	if d.m != nil {
		mLo := d.m.Tstart
		mHi := mLo + d.m.DT
		overlap := math.Min(τHi, mHi) - math.Max(τLo, mLo)
		if overlap < 0 {
			overlap = 0
		}
		if overlap >= δτ/2 { // >=, not >, so an exact 50/50 split is not skipped
			drbUpdate(d.m, drbStats)
			return
		}
	}

	if d.mNext != nil {
		nLo := d.mNext.Tstart // mNext's X.δT is still NA - its end is unknown
		overlap := τHi - math.Max(τLo, nLo)
		if overlap < 0 {
			overlap = 0
		}
		if overlap >= δτ/2 {
			drbUpdate(d.mNext, drbStats)
			return
		}
	}
}

// drbUpdate folds one x.drb_stats reply's per-QCI dl/ul totals into m.
//
// thp = ΣB*/ΣT*  where B* is tx'ed bytes in the sample without taking the
// last tti into account, and T* is time of tx also without that sample's
// tail tti. Only ΣB, ΣT and ΣT* (with error bars) are known, so:
//
//	ΣB          ΣB
//	───── ≤ thp ≤ ─────
//	ΣT_hi       ΣT*_lo
//
// DRB.IPTime.QCI and its error field are set to the mean and half-width
// of [ΣT*_lo, ΣT_hi] so that the KPI layer's plain DRB.IPVol/DRB.IPTime
// division reconstructs this same interval.
func drbUpdate(m *measurement.Measurement, drbStats *xlogreader.Message) {
	qciDict, _ := drbStats.Raw["qci_dict"].(map[string]any)

	dirs := []struct {
		name                  string
		qvol, qtime, qtimeErr *measurement.QCIArray
	}{
		{"dl", &m.DRBIPVolDl, &m.DRBIPTimeDl, &m.DRBIPTimeDlErr},
		{"ul", &m.DRBIPVolUl, &m.DRBIPTimeUl, &m.DRBIPTimeUlErr},
	}

	for _, d := range dirs {
		// qci_dict carries entries only for QCIs with non-zero values,
		// but if we see drb_stats at all we have information for every
		// QCI - pre-initialize the per-QCI arrays to zero.
		if allNA(d.qvol) {
			zeroQCIArray(d.qvol)
		}
		if allNA(d.qtime) {
			zeroQCIArray(d.qtime)
		}
		if allNA(d.qtimeErr) {
			zeroQCIArray(d.qtimeErr)
		}

		for qciStr, trxRaw := range qciDict {
			qci, err := strconv.Atoi(qciStr)
			if err != nil || qci < 0 || qci >= measurement.NumQCI {
				continue
			}
			trx, ok := trxRaw.(map[string]any)
			if !ok {
				continue
			}

			ΣB := floatOf(trx[d.name+"_tx_bytes"])
			ΣT := floatOf(trx[d.name+"_tx_time"])
			ΣTErr := floatOf(trx[d.name+"_tx_time_err"])
			ΣTT := floatOf(trx[d.name+"_tx_time_notailtti"])
			ΣTTErr := floatOf(trx[d.name+"_tx_time_notailtti_err"])

			ΣTHi := ΣT + ΣTErr
			ΣTTLo := ΣTT - ΣTTErr

			d.qvol.V[qci] = 8 * ΣB // bytes -> bits
			d.qtime.V[qci] = (ΣTHi + ΣTTLo) / 2
			d.qtimeErr.V[qci] = (ΣTHi - ΣTTLo) / 2
		}
	}
}

// allNA reports whether every per-QCI element of a is NA - unlike
// QCIArray.IsNA, it does not look at a.Sum, since drb_stats never
// populates Sum and zeroing the array must not depend on it.
func allNA(a *measurement.QCIArray) bool {
	for _, v := range a.V {
		if !measurement.IsNaF(v) {
			return false
		}
	}
	return true
}

func zeroQCIArray(a *measurement.QCIArray) {
	for i := range a.V {
		a.V[i] = 0
	}
}

func floatOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

// Replay drains d, appending every Measurement it produces to mlog. A
// *LogError from d, or a rejection from mlog.Append, is logged and
// skipped rather than aborting the replay - per the toolkit's error
// taxonomy, a data-validation failure at the driver layer is never fatal.
func Replay(d *Driver, mlog *measurementlog.Log, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	for {
		m, err := d.Read()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			var lerr *LogError
			if le, ok := err.(*LogError); ok {
				lerr = le
			}
			if lerr == nil {
				return err
			}
			logger.Warn("xkpi: measurement dropped", "err", lerr)
			continue
		}
		if err := mlog.Append(m); err != nil {
			logger.Warn("xkpi: measurement rejected", "err", err)
			continue
		}
	}
}

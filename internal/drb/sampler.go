package drb

import (
	"fmt"
	"strconv"
	"time"
)

// Sampler converts DRB usage information obtained via ue_get[stats]/stats
// into per-QCI Samples, one direction-specific dirSampler each for DL and
// UL.
type Sampler struct {
	dl *dirSampler
	ul *dirSampler
}

// NewSampler creates a Sampler that will start sampling from the given
// initial ue_stats0/stats0 state.
func NewSampler(ueStats0 *UEStats, stats0 *Stats) *Sampler {
	return &Sampler{
		dl: newDirSampler("dl", ueStats0, stats0, true /* use_bitsync */, true /* use_ri */),
		ul: newDirSampler("ul", ueStats0, stats0,
			false, // for UL, tx_bytes and #tx appear to come synchronized already
			false, // no rank indication reported for UL - assume SISO
		),
	}
}

// Add feeds the next ue_get[stats]+stats reports to the sampler and
// returns the per-QCI samples, for DL and UL, finalized during this
// addition.
func (s *Sampler) Add(ueStats *UEStats, stats *Stats) (dl, ul map[int][]Sample) {
	dl = s.dl.add(ueStats, stats, false)
	ul = s.ul.add(ueStats, stats, false)
	return dl, ul
}

// Finish wraps up all in-progress flows and returns the remaining samples.
func (s *Sampler) Finish() (dl, ul map[int][]Sample) {
	return s.dl.finish(), s.ul.finish()
}

// dirSampler serves Sampler for one of "dl" or "ul".
type dirSampler struct {
	dir        string
	useBitSync bool
	useRI      bool
	t          float64 // ue_stats.utc of the last add
	ues        map[int]*ueState
}

func newDirSampler(dir string, ueStats0 *UEStats, stats0 *Stats, useBitSync, useRI bool) *dirSampler {
	s := &dirSampler{
		dir:        dir,
		useBitSync: useBitSync,
		useRI:      useRI,
		t:          -1, // so that the init add below, at t=0, satisfies δt>0
		ues:        map[int]*ueState{},
	}
	samples := s.add(ueStats0, stats0, true)
	if len(samples) != 0 {
		panic("drb: dirSampler: initial add produced samples")
	}
	for _, ue := range s.ues {
		if len(ue.qciFlows) != 0 {
			panic("drb: dirSampler: initial add left qci flows in progress")
		}
	}
	return s
}

func (s *dirSampler) add(ueStats *UEStats, stats *Stats, init bool) map[int][]Sample {
	t := ueStats.UTC
	δt := time.Duration((t - s.t) * float64(time.Second))
	s.t = t
	if δt <= 0 {
		panic("drb: dirSampler.add: non-increasing timestamp")
	}

	qciSamples := map[int][]Sample{}
	ueLive := map[int]bool{}

	for _, ju := range ueStats.UEs {
		ueID := ju.EnbUEID
		ueLive[ueID] = true

		u := newUtx()
		for _, ucell := range ju.Cells {
			cellID := ucell.CellID
			statsCell, ok := stats.Cells[strconv.Itoa(cellID)]
			if !ok {
				panic(fmt.Sprintf("drb: dirSampler.add: stats missing cell %d", cellID))
			}

			if _, dup := u.cutx[cellID]; dup {
				panic("drb: dirSampler.add: duplicate cell in ue entry")
			}
			uc := &uCtx{
				tx:      ucell.tx(s.dir),
				retx:    ucell.retx(s.dir),
				bitrate: ucell.bitrate(s.dir),
			}
			if uc.tx < 0 || uc.retx < 0 || uc.bitrate < 0 {
				panic("drb: dirSampler.add: negative tx/retx/bitrate")
			}
			if s.useRI {
				uc.rank = ucell.RI
			} else {
				uc.rank = 1
			}
			uc.xlUseAvg = statsCell.useAvg(s.dir)
			u.cutx[cellID] = uc
		}

		ue, ok := s.ues[ueID]
		if !ok {
			ue = newUEState(s.useBitSync)
			s.ues[ueID] = ue
		}

		var txBytes int64
		eflowsLive := map[int]bool{}
		for _, erab := range ju.ERABs {
			erabID := erab.ERABID
			qci := erab.QCI
			eflowsLive[erabID] = true

			ef, ok := ue.erabFlows[erabID]
			if !ok {
				ef = &erabFlow{qci: qci, txTotalBytes: 0}
				ue.erabFlows[erabID] = ef
			}

			etxTotalBytes := erab.totalBytes(s.dir)
			if !(ef.qci == qci && ef.txTotalBytes <= etxTotalBytes) {
				// restart the erab flow on QCI change or counter decrease
				ef.qci = qci
				ef.txTotalBytes = 0
			}

			etxBytes := etxTotalBytes - ef.txTotalBytes
			ef.txTotalBytes = etxTotalBytes

			txBytes += etxBytes
			if etxBytes != 0 {
				u.qtxBytes[qci] += etxBytes
			}
		}

		for erabID := range ue.erabFlows {
			if !eflowsLive[erabID] {
				delete(ue.erabFlows, erabID)
			}
		}

		var bitnext []txEntry
		if ue.bitsync != nil {
			bitnext = ue.bitsync.next(δt, txBytes, u)
		} else {
			bitnext = []txEntry{{dt: δt, txBytes: txBytes, u: u}}
		}

		if init {
			continue
		}
		ue.updateQCIFlows(bitnext, qciSamples)
	}

	for ueID, ue := range s.ues {
		if ueLive[ueID] {
			continue
		}
		delete(s.ues, ueID)
		if ue.bitsync != nil {
			bitnext := ue.bitsync.finish()
			ue.updateQCIFlows(bitnext, qciSamples)
		}
		for qci, qf := range ue.qciFlows {
			for _, sample := range qf.finish() {
				qciSamples[qci] = append(qciSamples[qci], sample)
			}
		}
	}

	return qciSamples
}

// finish wraps up all in-progress flows and returns the remaining samples.
// Per-UE ERAB tracking state survives, as if the sampler had just been
// (re)initialized with the current ue_stats.
func (s *dirSampler) finish() map[int][]Sample {
	qciSamples := map[int][]Sample{}
	for _, ue := range s.ues {
		if ue.bitsync != nil {
			bitnext := ue.bitsync.finish()
			ue.updateQCIFlows(bitnext, qciSamples)
		}
		for qci, qf := range ue.qciFlows {
			for _, s := range qf.finish() {
				qciSamples[qci] = append(qciSamples[qci], s)
			}
		}
		ue.qciFlows = map[int]*qciFlow{}
	}
	return qciSamples
}

package measurementlog

import (
	"github.com/navytux/xlte/pkg/measurement"
)

// Segment is one slice of a Calc window: either a real logged record, or a
// synthesized NA-only record spanning a gap (or spanning the whole window,
// if the log has no overlapping records at all).
type Segment struct {
	Tstart float64
	DT     float64
	M      measurement.Measurement
}

// Window is the result of Calc: a time range snapped outward to fully
// contain every log record it overlaps, plus the gap-free, overlap-free
// partition of that range into Segments.
type Window struct {
	TLo, THi float64
	Segments []Segment
}

// Calc snaps the requested [tLo, tHi) interval outward so that it covers
// every record the log has that overlaps it in full, then partitions the
// resulting window into Segments with no gaps and no overlaps: every hole
// between/around real records becomes a synthesized NA-only Segment.
func Calc(l *Log, tLo, tHi float64) *Window {
	first, last, any := overlapRange(l, tLo, tHi)

	tLo2, tHi2 := tLo, tHi
	if any {
		if l.records[first].Tstart < tLo2 {
			tLo2 = l.records[first].Tstart
		}
		end := l.records[last].Tstart + l.records[last].DT
		if end > tHi2 {
			tHi2 = end
		}
	}

	w := &Window{TLo: tLo2, THi: tHi2}
	if !any {
		w.Segments = []Segment{naSegment(tLo2, tHi2)}
		return w
	}

	t := tLo2
	for i := first; i <= last; i++ {
		rec := l.records[i]
		if rec.Tstart > t {
			w.Segments = append(w.Segments, naSegment(t, rec.Tstart))
		}
		w.Segments = append(w.Segments, Segment{Tstart: rec.Tstart, DT: rec.DT, M: rec})
		t = rec.Tstart + rec.DT
	}
	if tHi2 > t {
		w.Segments = append(w.Segments, naSegment(t, tHi2))
	}
	return w
}

// overlapRange returns the index range [first, last] of records in l that
// overlap [tLo, tHi), and whether any such record exists. Overlap is
// defined as record.Tstart < tHi && record.Tstart+record.DT > tLo.
func overlapRange(l *Log, tLo, tHi float64) (first, last int, any bool) {
	for i, rec := range l.records {
		end := rec.Tstart + rec.DT
		if rec.Tstart < tHi && end > tLo {
			if !any {
				first = i
				any = true
			}
			last = i
		}
	}
	return first, last, any
}

func naSegment(tLo, tHi float64) Segment {
	m := measurement.New()
	m.Tstart = tLo
	m.DT = tHi - tLo
	return Segment{Tstart: tLo, DT: tHi - tLo, M: m}
}

package drb

import "time"

// splitEntry is one not-yet-split transmission update queued by
// ctxBytesSplitter.
type splitEntry struct {
	dt      time.Duration
	txBytes int64
	u       *utx
}

// ctxBytesSplitter splits a UE's total tx_bytes into per-cell shares,
// proportional to (β₁+β₂)/Σcells(β₁+β₂) where βᵢ is a cell's reported
// bitrate in frame i. Using two consecutive frames' bitrates smooths over
// a single frame's instantaneous rate momentarily dropping to zero.
type ctxBytesSplitter struct {
	txq []splitEntry
}

// next feeds the next (δt, tx_bytes, u) update and returns the ready
// prefix of the split stream, with u.cutx[cell].txBytes populated.
func (s *ctxBytesSplitter) next(dt time.Duration, txBytes int64, u *utx) []splitEntry {
	if len(s.txq) >= 2 {
		panic("drb: ctxBytesSplitter.next: txq overflow")
	}
	s.txq = append(s.txq, splitEntry{dt: dt, txBytes: txBytes, u: u})

	var vout []splitEntry
	for len(s.txq) >= 2 {
		e1 := s.txq[0]
		u2 := s.txq[1].u
		s.txq = s.txq[1:]

		var Σβ12 float64
		for cellID, uc1 := range e1.u.cutx {
			Σβ12 += uc1.bitrate
			if uc2, ok := u2.cutx[cellID]; ok {
				Σβ12 += uc2.bitrate
			}
		}

		for cellID, uc1 := range e1.u.cutx {
			β12 := uc1.bitrate
			if uc2, ok := u2.cutx[cellID]; ok {
				β12 += uc2.bitrate
			}
			if Σβ12 != 0 {
				uc1.txBytes = float64(e1.txBytes) * β12 / Σβ12
			} else {
				// should not happen, but divide equally just in case
				uc1.txBytes = float64(e1.txBytes) / float64(len(e1.u.cutx))
			}
		}

		vout = append(vout, splitEntry{dt: e1.dt, u: e1.u})
	}
	return vout
}

// finish flushes the last queued update, if any, by pairing it with an
// artificial empty frame. txsplit becomes reset.
func (s *ctxBytesSplitter) finish() []splitEntry {
	if len(s.txq) >= 2 {
		panic("drb: ctxBytesSplitter.finish: txq overflow")
	}
	if len(s.txq) == 0 {
		return nil
	}

	zutx := newUtx()
	vout := s.next(s.txq[0].dt, 0, zutx)
	if len(vout) != 1 || len(s.txq) != 1 {
		panic("drb: ctxBytesSplitter.finish: unexpected flush result")
	}
	s.txq = nil
	return vout
}

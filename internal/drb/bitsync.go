package drb

import "time"

// txEntry is one (δt, tx_bytes, u) update, after bitsync has resynchronized
// it in time.
type txEntry struct {
	dt      time.Duration
	txBytes int64
	u       *utx
}

// bitSync resynchronizes the δtx_bytes/#tx update stream for a whole UE:
// it splits total tx_bytes into per-cell shares via ctxBytesSplitter, then
// runs one bitSync1 per cell and recombines their outputs, keeping all
// per-cell bitSync1s advancing through the same queue positions.
type bitSync struct {
	txsplit   ctxBytesSplitter
	txq       []struct {
		dt time.Duration
		u  *utx
	}
	iTxq      int
	cbitsync1 map[int]*bitSync1
}

func newBitSync() *bitSync {
	return &bitSync{cbitsync1: map[int]*bitSync1{}}
}

func (s *bitSync) assertAllInSync() {
	if len(s.cbitsync1) == 0 {
		return
	}
	var base *bitSync1
	for _, s1 := range s.cbitsync1 {
		base = s1
		break
	}
	if s.iTxq != base.iTxq || len(s.txq) != len(base.txq) {
		panic("drb: bitSync: out of sync with base bitSync1")
	}
	for _, s1 := range s.cbitsync1 {
		if s1.iTxq != base.iTxq || len(s1.txq) != len(base.txq) || s1.iLshift != base.iLshift {
			panic("drb: bitSync: bitSync1s out of sync with each other")
		}
	}
}

// next feeds the next (δt, tx_bytes, u) update into the bitsync and
// returns the ready prefix of the resynchronized stream.
func (s *bitSync) next(dt time.Duration, txBytes int64, u *utx) []txEntry {
	var vbitnext []txEntry
	for _, split := range s.txsplit.next(dt, txBytes, u) {
		vbitnext = append(vbitnext, s.doNext(split.dt, split.u)...)
	}
	return vbitnext
}

func (s *bitSync) doNext(dt time.Duration, u *utx) []txEntry {
	s.assertAllInSync()

	s.txq = append(s.txq, struct {
		dt time.Duration
		u  *utx
	}{dt, u})

	cvbitnext1 := map[int][]txEntry1{}

	var baseLenTxq, baseILshift int
	haveBase := len(s.cbitsync1) > 0
	if haveBase {
		for _, s1 := range s.cbitsync1 {
			baseLenTxq = len(s1.txq)
			baseILshift = s1.iLshift
			break
		}
	}

	for cellID, uc := range u.cutx {
		s1, ok := s.cbitsync1[cellID]
		if !ok {
			s1 = &bitSync1{iTxq: s.iTxq, iLshift: s.iTxq}
			if !haveBase {
				haveBase = true
				baseLenTxq = len(s1.txq)
				baseILshift = s1.iLshift
			} else {
				for len(s1.txq) < baseLenTxq {
					out := s1.next(0, 0)
					if len(out) != 0 {
						panic("drb: bitSync: unexpected prefeed output")
					}
				}
			}
			if s1.iTxq != s.iTxq || s1.iLshift != baseILshift || len(s1.txq) != baseLenTxq {
				panic("drb: bitSync: new bitSync1 failed to align")
			}
			s.cbitsync1[cellID] = s1
		}
		cvbitnext1[cellID] = s1.next(uc.txBytes, float64(uc.tx+uc.retx))
	}

	for cellID, s1 := range s.cbitsync1 {
		if _, ok := u.cutx[cellID]; !ok {
			cvbitnext1[cellID] = s1.next(0, 0)
		}
	}

	vbitnext := s.mergeCvbitnext1(cvbitnext1)
	s.assertAllInSync()
	return vbitnext
}

// finish flushes the bitsync's output queue; the bitsync becomes reset.
func (s *bitSync) finish() []txEntry {
	s.assertAllInSync()

	var vbitnext []txEntry
	for _, split := range s.txsplit.finish() {
		vbitnext = append(vbitnext, s.doNext(split.dt, split.u)...)
	}

	cvbitnext1 := map[int][]txEntry1{}
	for cellID, s1 := range s.cbitsync1 {
		cvbitnext1[cellID] = s1.finish()
	}
	vbitnext = append(vbitnext, s.mergeCvbitnext1(cvbitnext1)...)
	s.assertAllInSync()

	if len(s.txq) != 0 {
		panic("drb: bitSync.finish: txq not drained")
	}
	s.cbitsync1 = map[int]*bitSync1{}
	return vbitnext
}

// mergeCvbitnext1 combines the per-cell results of bitSync1.next/finish
// for every cell back into a multi-cell (δt, tx_bytes, u) stream.
func (s *bitSync) mergeCvbitnext1(cvbitnext1 map[int][]txEntry1) []txEntry {
	var vbitnext []txEntry
	if len(cvbitnext1) == 0 {
		return vbitnext
	}

	n := -1
	for _, v := range cvbitnext1 {
		if n == -1 {
			n = len(v)
		} else if len(v) != n {
			panic("drb: bitSync: mismatched per-cell result lengths")
		}
	}

	for i := 0; i < n; i++ {
		head := s.txq[0]
		s.txq = s.txq[1:]
		s.iTxq++

		var txBytes int64
		for cellID, v := range cvbitnext1 {
			uc, ok := head.u.cutx[cellID]
			if !ok {
				// the cell will soon appear for real; for now it was
				// prepended with zero transmissions to keep its bitSync1
				// aligned with the others.
				uc = &uCtx{rank: 1}
				head.u.cutx[cellID] = uc
			}
			ctxBytes, tx := v[i].b, v[i].t
			uc.tx = int64(tx)
			uc.retx = 0 // bitsync1 folds retx into .tx
			txBytes += int64(ctxBytes)
		}

		vbitnext = append(vbitnext, txEntry{dt: head.dt, txBytes: txBytes, u: head.u})
	}
	return vbitnext
}

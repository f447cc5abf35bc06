package drb

// txEntry1 is one (tx_bytes, #tx) pair tracked by bitSync1.
type txEntry1 struct {
	b float64 // tx_bytes
	t float64 // #tx (transport blocks)
}

// bitSync1 resynchronizes one cell's substream of tx_bytes/#tx updates: it
// shifts transport-block counts one frame to the left so that #tx
// attributed to a frame matches the tx_bytes handed to the scheduler in
// that same frame, rather than the frame in which the HARQ ACK/NACK for
// it arrived.
//
// For simplicity this only handles synchronization between the current and
// next frame (enough for FDD; TDD, where the HARQ round-trip can span two
// frames, is not handled) and assumes every δt is approximately 10·Tti.
type bitSync1 struct {
	txq      []txEntry1
	iTxq     int
	iLshift  int
}

// next feeds the next (tx_bytes, #tx) pair into the bitsync and returns the
// ready prefix of the adjusted stream.
func (s *bitSync1) next(txBytes, tx float64) []txEntry1 {
	s.txq = append(s.txq, txEntry1{b: txBytes, t: tx})

	for s.iLshift+1 < s.iTxq+len(s.txq) {
		s.lshift(s.iLshift)
		s.iLshift++
	}

	var vout []txEntry1
	for len(s.txq) >= 3 {
		s.rebalance(2)
		vout = append(vout, s.txq[0])
		s.txq = s.txq[1:]
		s.iTxq++
	}
	return vout
}

// finish flushes the output queue; the bitsync becomes reset.
func (s *bitSync1) finish() []txEntry1 {
	if len(s.txq) >= 3 {
		panic("drb: bitSync1.finish: txq too long")
	}
	s.rebalance(len(s.txq))
	vout := s.txq
	s.txq = nil
	s.iTxq += len(vout)
	s.iLshift = s.iTxq
	return vout
}

// lshift moves transport blocks attributed to frame i+1, but actually
// earned by tx_bytes sent in frame i, back into frame i.
//
// In frame₁ tx_bytes₁ resulted in tx₁ acked transport blocks in that same
// frame. In frame₂, tx₂ is the sum of blocks acked in frame₂ but actually
// sent in frame₁ (t₂(1)) and blocks both sent and acked in frame₂
// (t₂(2)). Assuming tx_bytes yields a proportional #tx within its own
// frame:
//
//	tx₁        t₂(2)
//	───── = ─────────    =>  t₂(1) = tx₂ - t₂(2)
//	b₁          b₂
func (s *bitSync1) lshift(i int) {
	i -= s.iTxq
	e1 := s.txq[i]
	e2 := s.txq[i+1]

	var t22 float64
	if e1.b != 0 {
		t22 = e2.b * e1.t / e1.b
	} else {
		t22 = e2.t
	}
	t21 := e2.t - t22
	if t21 > 0 {
		// e.g. b₁=1000 t₁=10, b₂=1000, t₂=0 yields t21=-10
		e1.t += t21
		e2.t -= t21
		if e1.t < 0 || e2.t < 0 {
			panic("drb: bitSync1.lshift: negative tx after shift")
		}
	}
	s.txq[i] = e1
	s.txq[i+1] = e2
}

// rebalance redistributes #tx across txq[:l] proportional to tx_bytes,
// keeping Σ#tx constant:
//
//	t'_i = α·b_i,  α = Σt/Σb
//
// moving #tx away from periods with tx_bytes=0 towards periods where
// transmission actually happened.
func (s *bitSync1) rebalance(l int) {
	var Σb, Σt float64
	for _, e := range s.txq[:l] {
		Σb += e.b
		Σt += e.t
	}
	if Σb != 0 {
		for i := 0; i < l; i++ {
			e := s.txq[i]
			e.t = e.b * Σt / Σb
			if e.t < 0 {
				panic("drb: bitSync1.rebalance: negative tx")
			}
			s.txq[i] = e
		}
	}
}

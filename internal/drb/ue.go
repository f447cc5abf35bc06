package drb

import "time"

// erabFlow tracks one UE's transmission on a particular E-RAB: the last
// reported QCI and cumulative byte counter, used to compute the byte delta
// between successive ue_get[stats] polls.
type erabFlow struct {
	qci          int
	txTotalBytes int64
}

// ueState is the per-UE tracking state: its E-RAB flows (source of
// QCI-bucketed byte deltas), its in-progress per-QCI sample collection,
// and, for the DL direction, the bitsync that resynchronizes its
// tx_bytes/#tx streams.
type ueState struct {
	erabFlows map[int]*erabFlow
	qciFlows  map[int]*qciFlow
	bitsync   *bitSync // nil when the direction does not use bitsync (UL)
}

func newUEState(useBitSync bool) *ueState {
	ue := &ueState{
		erabFlows: map[int]*erabFlow{},
		qciFlows:  map[int]*qciFlow{},
	}
	if useBitSync {
		ue.bitsync = newBitSync()
	}
	return ue
}

// updateQCIFlows feeds a (possibly bitsync-adjusted) stream of transmission
// updates into the UE's per-QCI flows, appending any Samples that become
// finalized as a result into qciSamples.
func (ue *ueState) updateQCIFlows(bitnext []txEntry, qciSamples map[int][]Sample) {
	for _, e := range bitnext {
		ue.updateQCIFlows1(e.dt, e.txBytes, e.u, qciSamples)
	}
}

func (ue *ueState) updateQCIFlows1(dt time.Duration, txBytes int64, u *utx, qciSamples map[int][]Sample) {
	qflowsLive := map[int]bool{}

	// Estimate time for the current transmission: first normalize
	// transport blocks to TTI units (a 2x2 MIMO transmission yields 2x
	// the transport blocks), then estimate the overall tx time from the
	// per-cell transmission times t₁, t₂, ... as
	//
	//	tx_time ∈ [max(t₁,t₂,...), min(Σtᵢ, δt/tti)]
	δtTti := float64(dt) / float64(Tti)
	var txLo, txHi float64
	for _, uc := range u.cutx {
		ctx := float64(uc.tx+uc.retx) / float64(uc.rank) // both tx and retx take time
		if ctx > δtTti {
			ctx = δtTti // protection, should not happen
		}
		ctxLo, ctxHi := ctx, ctx

		// it can happen that even with correct bitsync we end up
		// observing ctx=0 here, e.g. when finish() interrupts an
		// in-progress bitsync exchange. In that case assume the tx time
		// could be anything between 1 tti and δt.
		if ctxLo == 0 {
			ctxHi = δtTti
			ctxLo = min1(ctxHi)
		}

		if uc.xlUseAvg < 0.9 {
			// not congested: transmission likely took ≈ ctx
		} else {
			// potentially congested: we don't know by how much, nor
			// which QCIs are affected more - all we can say is tx_time
			// lies somewhere within the limits.
			ctxHi = δtTti
		}

		if ctxLo > txLo {
			txLo = ctxLo
		}
		txHi += ctxHi
	}
	if txHi > δtTti {
		txHi = δtTti
	}

	// share/distribute the tx time over all QCIs.
	//
	// Without knowing per-QCI scheduler priorities we can only bound
	// #tx(qci) proportionally to its share of total tx_bytes:
	//
	//	tx_bytes(qci)
	//	───────────── · #tx  ≤  #tx(qci)  ≤  #tx
	//	  Σtx_bytes
	for qci, txBytesQCI := range u.qtxBytes {
		qflowsLive[qci] = true

		qf, ok := ue.qciFlows[qci]
		if !ok {
			qf = &qciFlow{}
			ue.qciFlows[qci] = qf
		}

		qtxLo := float64(txBytesQCI) * txLo / float64(txBytes)
		if qtxLo > txHi {
			qtxLo -= 1e-4 // e.g. 6.6*11308/11308 = 6.6 + ~1e-15
		}
		if !(qtxLo > 0 && qtxLo <= txHi) {
			panic("drb: updateQCIFlows1: qtxLo out of bounds")
		}
		for _, s := range qf.update(dt, txBytesQCI, qtxLo, txHi) {
			qciSamples[qci] = append(qciSamples[qci], s)
		}
	}

	// finish flows that did not get an update this round.
	for qci, qf := range ue.qciFlows {
		if qflowsLive[qci] {
			continue
		}
		delete(ue.qciFlows, qci)
		for _, s := range qf.finish() {
			qciSamples[qci] = append(qciSamples[qci], s)
		}
	}
}

func min1(x float64) float64 {
	if x < 1 {
		return x
	}
	return 1
}

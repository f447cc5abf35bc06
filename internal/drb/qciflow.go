package drb

import "time"

// qciFlow is the in-progress collection of data that will make up the next
// Sample for one QCI of one UE.
type qciFlow struct {
	txBytes   int64
	txTime    time.Duration
	txTimeErr time.Duration
}

// update feeds the flow with the next transmission period: tx_bytes sent
// during δt, with the transmission time estimated to be somewhere in
// [txLo, txHi] (expressed in TTI units). It returns a finalized Sample if
// the update closes out the current burst.
func (qf *qciFlow) update(δt time.Duration, txBytes int64, txLo, txHi float64) []Sample {
	if s, ok := qf.doUpdate(δt, txBytes, txLo, txHi); ok {
		return []Sample{s}
	}
	return nil
}

func (qf *qciFlow) doUpdate(δt time.Duration, txBytes int64, txLo, txHi float64) (Sample, bool) {
	if txBytes <= 0 {
		panic("drb: qciFlow.update: txBytes must be > 0")
	}
	δtTti := float64(δt) / float64(Tti)

	txTime := time.Duration((txLo + txHi) / 2 * float64(Tti))
	txTimeErr := time.Duration((txHi - txLo) / 2 * float64(Tti))

	cont := qf.txTime != 0 // this update continues the current sample

	qf.txBytes += txBytes
	qf.txTime += txTime
	qf.txTimeErr += txTimeErr

	// a continued sample either stays big (keeps going) or becomes small,
	// which coalesces it and ends the sample. Dropping the last TTI this
	// way does not change overall throughput statistics.
	if cont && txHi < 0.9*δtTti {
		s := qf.sample()
		qf.reset()
		return s, true
	}
	return Sample{}, false
}

// finish tells the flow that no further updates are coming.
func (qf *qciFlow) finish() []Sample {
	if qf.txTime == 0 {
		return nil
	}
	s := qf.sample()
	qf.reset()
	return []Sample{s}
}

func (qf *qciFlow) reset() {
	qf.txBytes = 0
	qf.txTime = 0
	qf.txTimeErr = 0
}

func (qf *qciFlow) sample() Sample {
	s := Sample{TxBytes: qf.txBytes, TxTime: qf.txTime, TxTimeErr: qf.txTimeErr}
	if !(s.TxBytes > 0 && s.TxTime > 0 && s.TxTimeErr >= 0 && s.TxTime-s.TxTimeErr > 0) {
		panic("drb: qciFlow.sample: inconsistent accumulated sample")
	}
	return s
}

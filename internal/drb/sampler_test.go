package drb

import (
	"testing"
	"time"
)

func ueStats(utc float64, cellID, ueID int, tx, retx int64, bitrate float64, ri int, erabID, qci int, txTotal int64) (*UEStats, *Stats) {
	return &UEStats{
			Time: utc - 100,
			UTC:  utc,
			UEs: []UEEntry{{
				EnbUEID: ueID,
				Cells: []UECell{{
					CellID:    cellID,
					UlTx:      tx,
					UlRetx:    retx,
					UlBitrate: bitrate,
					RI:        ri,
				}},
				ERABs: []ERAB{{
					ERABID:       erabID,
					QCI:          qci,
					UlTotalBytes: txTotal,
				}},
			}},
		}, &Stats{
			UTC: utc,
			Cells: map[string]StatsCell{
				"1": {UlUseAvg: 0.1},
			},
		}
}

// TestSamplerUL exercises dirSampler without bitsync (the UL path), which
// should pass tx_bytes/#tx through mostly unadjusted and directly
// establish a Sample once a burst ends.
func TestSamplerUL(t *testing.T) {
	ueStats0, stats0 := ueStats(100, 1, 7, 0, 0, 0, 1, 1, 9, 0)
	s := newDirSampler("ul", ueStats0, stats0, false, false)

	ueStats1, stats1 := ueStats(100.010, 1, 7, 10, 0, 10000, 1, 1, 9, 10000)
	samples := s.add(ueStats1, stats1, false)
	if len(samples) != 0 {
		t.Fatalf("add1: expected no finalized sample yet, got %v", samples)
	}

	ueStats2, stats2 := ueStats(100.020, 1, 7, 0, 0, 0, 1, 1, 9, 10000)
	samples = s.add(ueStats2, stats2, false)
	got, ok := samples[9]
	if !ok || len(got) != 1 {
		t.Fatalf("add2: expected one finalized sample for qci 9, got %v", samples)
	}
	sample := got[0]
	if sample.TxBytes != 10000 {
		t.Errorf("sample.TxBytes = %d, want 10000", sample.TxBytes)
	}
	if sample.TxTime <= 0 {
		t.Errorf("sample.TxTime = %v, want > 0", sample.TxTime)
	}
}

func TestQCIFlowUpdateAndFinish(t *testing.T) {
	qf := &qciFlow{}

	// the first update of a flow starts a sample and does not finalize it.
	if got := qf.update(10*Tti, 1000, 1, 10); got != nil {
		t.Fatalf("update: expected no sample yet, got %v", got)
	}
	if qf.txBytes != 1000 {
		t.Fatalf("txBytes = %d, want 1000", qf.txBytes)
	}

	// finish flushes whatever is in progress.
	samples := qf.finish()
	if len(samples) != 1 {
		t.Fatalf("finish: got %d samples, want 1", len(samples))
	}
	if samples[0].TxBytes != 1000 {
		t.Errorf("TxBytes = %d, want 1000", samples[0].TxBytes)
	}
	if qf.txBytes != 0 || qf.txTime != 0 {
		t.Errorf("flow not reset after finish: %+v", qf)
	}
}

func TestBitSync1Rebalance(t *testing.T) {
	s1 := &bitSync1{}
	var out []txEntry1
	out = append(out, s1.next(1000, 0)...)
	out = append(out, s1.next(1000, 10)...)
	out = append(out, s1.next(0, 0)...)
	out = append(out, s1.finish()...)

	if len(out) != 3 {
		t.Fatalf("got %d entries, want 3", len(out))
	}
	var Σt float64
	for _, e := range out {
		if e.t < 0 {
			t.Errorf("negative tx after rebalance: %v", e)
		}
		Σt += e.t
	}
	if Σt != 10 {
		t.Errorf("Σt = %v, want 10 (rebalance must preserve total #tx)", Σt)
	}
}

func TestIncStats(t *testing.T) {
	s := NewIncStats()
	for _, x := range []float64{1, 2, 3, 4, 5} {
		s.Add(x)
	}
	if s.Avg() != 3 {
		t.Errorf("Avg() = %v, want 3", s.Avg())
	}
	if s.Min != 1 || s.Max != 5 {
		t.Errorf("Min/Max = %v/%v, want 1/5", s.Min, s.Max)
	}
	if s.N() != 5 {
		t.Errorf("N() = %v, want 5", s.N())
	}
}

func TestSampleBitrate(t *testing.T) {
	s := Sample{TxBytes: 1250, TxTime: 10 * time.Millisecond, TxTimeErr: 0}
	lo, hi := s.Bitrate()
	if lo != hi {
		t.Errorf("lo=%v hi=%v, want equal when TxTimeErr=0", lo, hi)
	}
	if lo != 1_000_000 {
		t.Errorf("bitrate = %v, want 1e6 (1250 bytes in 10ms = 1Mbit/s)", lo)
	}
}

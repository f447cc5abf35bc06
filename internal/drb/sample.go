package drb

import (
	"fmt"
	"math"
	"time"
)

// Sample represents one burst of continuous transmission to/from a
// particular UE on a particular QCI.
//
// A transmission is continuous if the corresponding transmission buffer
// is never empty for its whole duration. A stream that transmits every
// TTI is continuous, and so is one with gaps, as long as the gaps are due
// to e.g. congestion rather than the buffer actually draining:
//
//	| |x|x|x|x|x| |
//	| |x|x| |x| | |x|x| |
//	       ↑   ↑ ↑
//	   buffer is not empty - the transmission sample continues
type Sample struct {
	TxBytes    int64         // amount of bytes transmitted
	TxTime     time.Duration // time interval during which the transmission was made
	TxTimeErr  time.Duration // accuracy of TxTime
}

// Bitrate returns the [lo,hi] bit-rate bounds implied by the sample.
func (s Sample) Bitrate() (lo, hi float64) {
	div := func(a, b float64) float64 {
		if b != 0 {
			return a / b
		}
		if a != 0 {
			return math.Inf(1)
		}
		return math.NaN()
	}
	tLo := (s.TxTime - s.TxTimeErr).Seconds()
	tHi := (s.TxTime + s.TxTimeErr).Seconds()
	lo = div(float64(s.TxBytes)*8, tHi)
	hi = div(float64(s.TxBytes)*8, tLo)
	return lo, hi
}

func (s Sample) String() string {
	lo, hi := s.Bitrate()
	avgBit := float64(s.TxBytes) * 8 / s.TxTime.Seconds()
	return fmt.Sprintf("Sample(%db, %.1f ±%.1ftti)\t# %.0f ±%.0f bit/s",
		s.TxBytes, float64(s.TxTime)/float64(Tti), float64(s.TxTimeErr)/float64(Tti),
		avgBit, (hi-lo)/2)
}

package measurementlog

import (
	"math"

	"github.com/navytux/xlte/pkg/kpi"
)

// SuccessRate computes the generic fini/init success-rate KPI helper used
// by every accessibility-style KPI: given the (possibly Σqci or Σcause)
// init-counter name and fini-counter name, it returns a confidence
// interval that widens to account for periods where init was observed but
// fini was not (record ended before the outcome was known) and periods
// where nothing at all was observed (init itself NA).
//
//	Σt    = time of segments having non-NA init
//	t⁺    = time of the remaining segments
//	Σinit = Σ init over Σt segments
//	Σfini = Σ fini over Σt segments (a segment with NA fini contributes 0)
//	Σufini = Σ init over segments with non-NA init but NA fini
//
// If Σinit == 0 or Σt == 0, the result is [0,1] (total uncertainty).
// Otherwise, assume the t⁺ segments would have had the same init rate
// as the Σt segments (init⁺ = t⁺·Σinit/Σt) and return:
//
//	[ Σfini/(Σinit+init⁺), (Σfini+init⁺+Σufini)/(Σinit+init⁺) ]
func SuccessRate(w *Window, initName, finiName string) kpi.Interval {
	var Σt, tPlus, Σinit, Σfini, Σufini float64

	for _, seg := range w.Segments {
		initV, initOK := fieldValue(&seg.M, initName)
		haveInit := initOK && !math.IsNaN(initV)

		if !haveInit {
			tPlus += seg.DT
			continue
		}
		Σt += seg.DT
		Σinit += initV

		finiV, finiOK := fieldValue(&seg.M, finiName)
		haveFini := finiOK && !math.IsNaN(finiV)
		if haveFini {
			Σfini += finiV
		} else {
			Σufini += initV
		}
	}

	if Σinit == 0 || Σt == 0 {
		return kpi.Full
	}

	initPlus := tPlus * Σinit / Σt
	denom := Σinit + initPlus
	lo := Σfini / denom
	hi := (Σfini + initPlus + Σufini) / denom
	return kpi.Interval{Lo: lo, Hi: hi}
}

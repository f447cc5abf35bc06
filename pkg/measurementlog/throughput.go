package measurementlog

import (
	"math"

	"github.com/navytux/xlte/pkg/kpi"
)

// Throughput holds the per-direction E-UTRAN IP Throughput KPI (TS 32.450
// §6.3.1) for one QCI.
type Throughput struct {
	Dl kpi.Interval
	Ul kpi.Interval
}

// IPThroughput computes the E-UTRAN IP Throughput KPI for every QCI that
// has at least one non-NA contribution in the window, in bits/second.
//
// Unlike SuccessRate, missing data here does not widen the result: a
// segment/QCI with NA volume or NA time is skipped entirely rather than
// contributing to an uncertainty budget. This asymmetry is intentional and
// carried over unchanged from the source implementation (see DESIGN.md).
func IPThroughput(w *Window) map[int]Throughput {
	out := map[int]Throughput{}
	for qci := 0; qci < 256; qci++ {
		dl := accumulateThroughput(w, qci, "DL")
		ul := accumulateThroughput(w, qci, "UL")
		if dl == nil && ul == nil {
			continue
		}
		t := Throughput{}
		if dl != nil {
			t.Dl = *dl
		} else {
			t.Dl = kpi.Interval{Lo: math.NaN(), Hi: math.NaN()}
		}
		if ul != nil {
			t.Ul = *ul
		} else {
			t.Ul = kpi.Interval{Lo: math.NaN(), Hi: math.NaN()}
		}
		out[qci] = t
	}
	return out
}

func accumulateThroughput(w *Window, qci int, dir string) *kpi.Interval {
	var volName, timeName, errName string
	switch dir {
	case "DL":
		volName, timeName, errName = "DRB.IPVolDl.QCI", "DRB.IPTimeDl.QCI", "XXX.DRB.IPTimeDl_err.QCI"
	case "UL":
		volName, timeName, errName = "DRB.IPVolUl.QCI", "DRB.IPTimeUl.QCI", "XXX.DRB.IPTimeUl_err.QCI"
	}

	var Σvol, Σtime, ΣtimeErr float64
	any := false
	for _, seg := range w.Segments {
		vol, volOK := fieldQCI(&seg, volName, qci)
		tim, timOK := fieldQCI(&seg, timeName, qci)
		terr, terrOK := fieldQCI(&seg, errName, qci)
		if !volOK || !timOK || !terrOK {
			continue
		}
		if math.IsNaN(vol) || math.IsNaN(tim) || math.IsNaN(terr) {
			continue
		}
		Σvol += vol
		Σtime += tim
		ΣtimeErr += terr
		any = true
	}
	if !any {
		return nil
	}
	iv := kpi.Interval{
		Lo: Σvol / (Σtime + ΣtimeErr),
		Hi: Σvol / (Σtime - ΣtimeErr),
	}
	return &iv
}

func fieldQCI(seg *Segment, name string, qci int) (float64, bool) {
	return fieldValueQCI(&seg.M, name, qci)
}

package measurementlog

import (
	"math"

	"github.com/navytux/xlte/pkg/measurement"
)

// AggValue is one aggregated scalar or array-element: the summed value
// plus τ_na, the total time within the window that contributed no data to
// this field.
type AggValue struct {
	Value float64
	TNA   float64
}

// AggStatT is the aggregation of a StatT field: min-of-mins, max-of-maxes,
// and a δT-time-weighted average, plus τ_na.
type AggStatT struct {
	Min, Avg, Max float64
	TNA           float64
}

// AggStat is the aggregation of a Stat field: min-of-mins, max-of-maxes,
// and an n-weighted average, plus τ_na.
type AggStat struct {
	Min, Avg, Max float64
	N             int64
	TNA           float64
}

// SigmaMeasurement is the aggregate of a Window: same schema as
// Measurement, but every field becomes an (value, τ_na) pair (or the
// StatT/Stat analogue), keyed by the same registered field names
// Measurement exposes.
type SigmaMeasurement struct {
	Scalar map[string]AggValue
	QCI    map[string]*[measurement.NumQCI]AggValue
	Cause  map[string]*[measurement.NumCauses]AggValue
	StatT  map[string]AggStatT
	StatQCI map[string]*[measurement.NumQCI]AggStat
}

// Aggregate folds every Segment of a Window into a SigmaMeasurement.
//
//   - a segment whose field is NA contributes its DT to that field's τ_na;
//   - a scalar numeric field sums;
//   - a StatT field takes min-of-mins, max-of-maxes, and a δT-weighted
//     average;
//   - a Stat field takes min-of-mins, max-of-maxes, and an n-weighted
//     average (N itself sums).
func Aggregate(w *Window) SigmaMeasurement {
	out := SigmaMeasurement{
		Scalar:  map[string]AggValue{},
		QCI:     map[string]*[measurement.NumQCI]AggValue{},
		Cause:   map[string]*[measurement.NumCauses]AggValue{},
		StatT:   map[string]AggStatT{},
		StatQCI: map[string]*[measurement.NumQCI]AggStat{},
	}

	// running weighted-average accumulators, keyed like the output maps.
	statTWeight := map[string]float64{}
	statQCIWeight := map[string]*[measurement.NumQCI]int64{}

	for _, name := range measurement.FieldNames() {
		for _, seg := range w.Segments {
			aggregateField(&out, statTWeight, statQCIWeight, name, &seg)
		}
	}
	return out
}

func aggregateField(out *SigmaMeasurement, statTWeight map[string]float64,
	statQCIWeight map[string]*[measurement.NumQCI]int64, name string, seg *Segment) {

	if v, ok := measurement.GetF64(&seg.M, name); ok {
		a := out.Scalar[name]
		if measurement.IsNaF(v) {
			a.TNA += seg.DT
		} else {
			a.Value += v
		}
		out.Scalar[name] = a
		return
	}

	if arr := qciArrayOf(&seg.M, name); arr != nil {
		slot := out.QCI[name]
		if slot == nil {
			slot = &[measurement.NumQCI]AggValue{}
			out.QCI[name] = slot
		}
		for k, v := range arr {
			if measurement.IsNaF(v) {
				slot[k].TNA += seg.DT
			} else {
				slot[k].Value += v
			}
		}
		return
	}

	if arr := causeArrayOf(&seg.M, name); arr != nil {
		slot := out.Cause[name]
		if slot == nil {
			slot = &[measurement.NumCauses]AggValue{}
			out.Cause[name] = slot
		}
		for k, v := range arr {
			if measurement.IsNaF(v) {
				slot[k].TNA += seg.DT
			} else {
				slot[k].Value += v
			}
		}
		return
	}

	if st, ok := statTOf(&seg.M, name); ok {
		a := out.StatT[name]
		if st.IsNA() {
			a.TNA += seg.DT
		} else {
			w := statTWeight[name]
			if w == 0 {
				a.Min, a.Max = st.Min, st.Max
			} else {
				a.Min = math.Min(a.Min, st.Min)
				a.Max = math.Max(a.Max, st.Max)
			}
			a.Avg = (a.Avg*w + st.Avg*seg.DT) / (w + seg.DT)
			statTWeight[name] = w + seg.DT
		}
		out.StatT[name] = a
		return
	}

	if arr, ok := statQCIArrayOf(&seg.M, name); ok {
		slot := out.StatQCI[name]
		wslot := statQCIWeight[name]
		if slot == nil {
			slot = &[measurement.NumQCI]AggStat{}
			out.StatQCI[name] = slot
			wslot = &[measurement.NumQCI]int64{}
			statQCIWeight[name] = wslot
		}
		for k, st := range arr {
			if st.IsNA() {
				slot[k].TNA += seg.DT
				continue
			}
			n := wslot[k]
			if n == 0 {
				slot[k].Min, slot[k].Max = st.Min, st.Max
			} else {
				slot[k].Min = math.Min(slot[k].Min, st.Min)
				slot[k].Max = math.Max(slot[k].Max, st.Max)
			}
			slot[k].Avg = (slot[k].Avg*float64(n) + st.Avg*float64(st.N)) / float64(n+st.N)
			slot[k].N += st.N
			wslot[k] = n + st.N
		}
	}
}

func qciArrayOf(m *measurement.Measurement, name string) []float64 {
	switch name {
	case "ERAB.EstabInitAttNbr.QCI":
		return m.ERABEstabInitAttNbr.V[:]
	case "ERAB.EstabInitSuccNbr.QCI":
		return m.ERABEstabInitSuccNbr.V[:]
	case "ERAB.EstabAddAttNbr.QCI":
		return m.ERABEstabAddAttNbr.V[:]
	case "ERAB.EstabAddSuccNbr.QCI":
		return m.ERABEstabAddSuccNbr.V[:]
	case "DRB.IPVolDl.QCI":
		return m.DRBIPVolDl.V[:]
	case "DRB.IPVolUl.QCI":
		return m.DRBIPVolUl.V[:]
	case "DRB.IPTimeDl.QCI":
		return m.DRBIPTimeDl.V[:]
	case "DRB.IPTimeUl.QCI":
		return m.DRBIPTimeUl.V[:]
	case "XXX.DRB.IPTimeDl_err.QCI":
		return m.DRBIPTimeDlErr.V[:]
	case "XXX.DRB.IPTimeUl_err.QCI":
		return m.DRBIPTimeUlErr.V[:]
	}
	return nil
}

func causeArrayOf(m *measurement.Measurement, name string) []float64 {
	switch name {
	case "RRC.ConnEstabAtt.CAUSE":
		return m.RRCConnEstabAtt.V[:]
	case "RRC.ConnEstabSucc.CAUSE":
		return m.RRCConnEstabSucc.V[:]
	}
	return nil
}

func statTOf(m *measurement.Measurement, name string) (measurement.StatT, bool) {
	if name == "DRB.UEActive" {
		return m.DRBUEActive, true
	}
	return measurement.StatT{}, false
}

func statQCIArrayOf(m *measurement.Measurement, name string) ([measurement.NumQCI]measurement.Stat, bool) {
	if name == "DRB.IPLatDl.QCI" {
		return m.DRBIPLatDl.V, true
	}
	return [measurement.NumQCI]measurement.Stat{}, false
}

// Package measurementlog implements the append-only, ordering-invariant log
// of measurement.Measurement records and the window calculator that turns
// an arbitrary time range of that log into 3GPP KPI values.
package measurementlog

import (
	"fmt"
	"math"

	"github.com/navytux/xlte/pkg/measurement"
)

// Log is an ordered, append-only sequence of Measurement records with two
// invariants enforced at append time:
//   - Tstart is strictly increasing;
//   - no two adjacent records overlap in time
//     (records[i-1].Tstart + records[i-1].DT <= records[i].Tstart).
//
// A gap between adjacent records is allowed and is semantically equivalent
// to an NA-only record spanning the hole; Calc synthesizes that record on
// the fly rather than storing it.
//
// Append is meant to be called from a single producer; once appended,
// records are immutable, so concurrent readers need no locking.
type Log struct {
	records []measurement.Measurement
}

// New returns an empty Log.
func New() *Log {
	return &Log{}
}

// Len returns the number of records in the log.
func (l *Log) Len() int {
	return len(l.records)
}

// At returns the i'th record.
func (l *Log) At(i int) measurement.Measurement {
	return l.records[i]
}

// Append validates m against the log's invariants and the schema's own
// data-validation rules, then appends it. It never mutates m.
//
// Rejected:
//   - NA Tstart or DT;
//   - any negative counter;
//   - any {Att,Succ} pair with Succ > Att;
//   - Tstart not strictly greater than the previous record's Tstart;
//   - overlap with the previous record
//     (m.Tstart < previous.Tstart+previous.DT).
func (l *Log) Append(m measurement.Measurement) error {
	if measurement.IsNaF(m.Tstart) {
		return fmt.Errorf("measurementlog: append: X.Tstart is NA")
	}
	if measurement.IsNaF(m.DT) {
		return fmt.Errorf("measurementlog: append: X.δT is NA")
	}
	if m.DT < 0 {
		return fmt.Errorf("measurementlog: append: X.δT is negative (%v)", m.DT)
	}
	if err := checkNonNegative(&m); err != nil {
		return fmt.Errorf("measurementlog: append: %w", err)
	}
	if err := checkCounterPairs(&m); err != nil {
		return fmt.Errorf("measurementlog: append: %w", err)
	}
	if n := len(l.records); n > 0 {
		prev := l.records[n-1]
		if !(m.Tstart > prev.Tstart) {
			return fmt.Errorf("measurementlog: append: Tstart %v does not strictly increase over previous Tstart %v", m.Tstart, prev.Tstart)
		}
		if m.Tstart < prev.Tstart+prev.DT {
			return fmt.Errorf("measurementlog: append: record starting at %v overlaps previous record ending at %v", m.Tstart, prev.Tstart+prev.DT)
		}
	}
	l.records = append(l.records, m)
	return nil
}

func checkNonNegative(m *measurement.Measurement) error {
	for _, name := range measurement.FieldNames() {
		if neg, ok := fieldHasNegative(m, name); ok && neg {
			return fmt.Errorf("field %q carries a negative value", name)
		}
	}
	return nil
}

func fieldHasNegative(m *measurement.Measurement, name string) (neg bool, checked bool) {
	if v, ok := measurement.GetF64(m, name); ok {
		if name == "X.Tstart" || name == "X.δT" {
			return false, true // duration/epoch checked separately, sign alone isn't "a counter"
		}
		return !measurement.IsNaF(v) && v < 0, true
	}
	if v, ok := measurement.SumQCI(m, name); ok && !measurement.IsNaF(v) && v < 0 {
		return true, true
	}
	for _, v := range causeArrayOf(m, name) {
		if !measurement.IsNaF(v) && v < 0 {
			return true, true
		}
	}
	for k := 0; k < measurement.NumQCI; k++ {
		if v, ok := measurement.GetQCI(m, name, k); ok {
			if !measurement.IsNaF(v) && v < 0 {
				return true, true
			}
		}
	}
	return false, false
}

func checkCounterPairs(m *measurement.Measurement) error {
	for _, p := range measurement.CounterPairs {
		att, attOK := fieldValue(m, p.AttName)
		succ, succOK := fieldValue(m, p.SuccName)
		if attOK && succOK && !math.IsNaN(att) && !math.IsNaN(succ) && succ > att {
			return fmt.Errorf("counter pair %q: Succ (%v) > Att (%v)", p.Name, succ, att)
		}
	}
	return nil
}

// fieldValueQCI returns element qci of a registered QCI-indexed array
// field.
func fieldValueQCI(m *measurement.Measurement, name string, qci int) (float64, bool) {
	return measurement.GetQCI(m, name, qci)
}

// fieldValue returns the scalar or Σqci/Σcause value of a registered
// field, dispatching on its underlying kind. It is the common accessor
// used by the append-time checks and by the success-rate KPI helper.
func fieldValue(m *measurement.Measurement, name string) (float64, bool) {
	if v, ok := measurement.GetF64(m, name); ok {
		return v, true
	}
	if v, ok := measurement.SumQCI(m, name); ok {
		return v, true
	}
	return 0, false
}

// Package measurement implements the fixed-schema telemetry record described
// by 3GPP TS 32.450/32.425-style performance measurements: a typed struct
// with explicit NA ("not available") semantics, QCI/cause-indexed array
// fields with "X.QCI.k" aliasing and a derived "X.sum" convenience value,
// and the Stat/StatT sub-profiles used for arbitrary- and time-sampled
// statistics.
//
// NA is distinct from zero: it means "no observation contributed to this
// field", not "measured as zero". It propagates through aggregation as a
// separate time-not-available budget (see package measurementlog).
package measurement

import "math"

// NumQCI is the number of QCI-indexed slots an array field carries (0..255).
const NumQCI = 256

// NumCauses is the number of RRC connection-establishment cause slots.
// 3GPP TS 36.331 enumerates establishment causes in a small, closed set;
// 16 slots comfortably covers the defined causes plus spare/future values.
const NumCauses = 16

// NaF is the NA sentinel for float64-valued fields.
var NaF = math.NaN()

// IsNaF reports whether a float64 field holds the NA sentinel.
func IsNaF(v float64) bool {
	return math.IsNaN(v)
}

// NaI is the NA sentinel for integer-valued fields: the minimum
// representable value for a signed 64-bit integer. This is never a valid
// counter value (counters are non-negative), so it is unambiguous.
const NaI int64 = math.MinInt64

// IsNaI reports whether an int64 field holds the NA sentinel.
func IsNaI(v int64) bool {
	return v == NaI
}

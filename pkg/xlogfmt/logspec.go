// Package xlogfmt defines the on-the-wire shapes shared by the xlog
// collector and its readers: LogSpec (what to poll, and how often) and the
// JSON-Lines event envelope the collector writes to its output file.
package xlogfmt

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPeriod is the period, in seconds, assumed for a LogSpec whose
// text omits the trailing "/<period>s".
const DefaultPeriod = 60.0

// LOSWindow bounds how many non-sync entries a valid xlog stream may
// contain between two syncs; readers use it to detect loss of sync.
const LOSWindow = 1000

// LogSpec is one specification of what to log, e.g. "stats[rf]/10s".
type LogSpec struct {
	Query  string
	Opts   []string
	Period float64 // seconds
}

// String renders spec back to its canonical "<query>[<opt,opt,...>]/<period>s" form.
func (s LogSpec) String() string {
	return fmt.Sprintf("%s[%s]/%ss", s.Query, strings.Join(s.Opts, ","), formatPeriod(s.Period))
}

func formatPeriod(p float64) string {
	if p == float64(int64(p)) {
		return strconv.FormatInt(int64(p), 10)
	}
	return strconv.FormatFloat(p, 'g', -1, 64)
}

// ParseLogSpec parses text into a LogSpec.
func ParseLogSpec(text string) (LogSpec, error) {
	bad := func(reason string) (LogSpec, error) {
		return LogSpec{}, fmt.Errorf("invalid logspec %q: %s", text, reason)
	}

	query := text
	period := DefaultPeriod
	var opts []string

	if i := strings.LastIndex(query, "/"); i != -1 {
		tail := query[i+1:]
		query = query[:i]
		if !strings.HasSuffix(tail, "s") {
			return bad("invalid period")
		}
		p, err := strconv.ParseFloat(tail[:len(tail)-1], 64)
		if err != nil {
			return bad("invalid period")
		}
		period = p
	}

	if i := strings.Index(query, "["); i != -1 {
		tail := query[i:]
		query = query[:i]
		j := strings.Index(tail, "]")
		if j == -1 {
			return bad("missing closing ]")
		}
		opts = strings.Split(tail[1:j], ",")
	}

	for _, c := range "[]/ " {
		if strings.ContainsRune(query, c) {
			return bad("invalid query")
		}
	}

	return LogSpec{Query: query, Opts: opts, Period: period}, nil
}

// Normalize ensures specv carries exactly one "meta.sync" entry (the
// longest period among all specs, or 10x that if none was given) and
// exactly one "config_get" entry sharing the sync spec's period, and
// validates that a sync will arrive at least every LOSWindow records.
//
// It returns the normalized spec list and the sync period, leaving specv
// itself untouched.
func Normalize(specv []LogSpec) ([]LogSpec, float64, error) {
	out := append([]LogSpec(nil), specv...)

	isync := -1
	haveConfigGet := false
	pmax := 1.0
	for i, l := range out {
		if l.Period > pmax {
			pmax = l.Period
		}
		if l.Query == "meta.sync" {
			isync = i
		}
		if l.Query == "config_get" {
			haveConfigGet = true
		}
	}

	if isync == -1 {
		isync = 0
		out = append([]LogSpec{{Query: "meta.sync", Period: pmax * 10}}, out...)
	}
	syncPeriod := out[isync].Period

	if !haveConfigGet {
		cg := LogSpec{Query: "config_get", Period: syncPeriod}
		out = append(out[:isync+1], append([]LogSpec{cg}, out[isync+1:]...)...)
	}

	var ns float64
	for _, l := range out {
		ns += syncPeriod / l.Period
	}
	if ns > LOSWindow {
		return nil, 0, fmt.Errorf("meta.sync asked to come ~ every %.0f entries, which is > LOS_window (%d)", ns, LOSWindow)
	}

	return out, syncPeriod, nil
}

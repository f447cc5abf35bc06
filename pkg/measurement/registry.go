package measurement

import (
	"fmt"
	"strconv"
	"strings"
)

// fieldKind identifies the Go representation behind a registered field
// name, used to drive NA detection, aggregation and the QCI/cause alias
// layer without reflection on the per-sample hot path: the registry below
// is built once, at package init, into a table of small closures: looking
// a name up is a single map access plus a direct call, not a reflect.Value
// walk.
type fieldKind int

const (
	kindF64 fieldKind = iota
	kindQCIArray
	kindCauseArray
	kindStatT
	kindStatQCIArray
)

type fieldInfo struct {
	name string
	kind fieldKind

	f64      func(*Measurement) *float64
	qciArr   func(*Measurement) *QCIArray
	causeArr func(*Measurement) *CauseArray
	statT    func(*Measurement) *StatT
	statQCI  func(*Measurement) *StatQCIArray
}

var registry = map[string]*fieldInfo{}

func reg(fi fieldInfo) {
	registry[fi.name] = &fi
}

func init() {
	reg(fieldInfo{name: "X.Tstart", kind: kindF64, f64: func(m *Measurement) *float64 { return &m.Tstart }})
	reg(fieldInfo{name: "X.δT", kind: kindF64, f64: func(m *Measurement) *float64 { return &m.DT }})

	reg(fieldInfo{name: "RRC.ConnEstabAtt.CAUSE", kind: kindCauseArray, causeArr: func(m *Measurement) *CauseArray { return &m.RRCConnEstabAtt }})
	reg(fieldInfo{name: "RRC.ConnEstabSucc.CAUSE", kind: kindCauseArray, causeArr: func(m *Measurement) *CauseArray { return &m.RRCConnEstabSucc }})

	reg(fieldInfo{name: "S1SIG.ConnEstabAtt", kind: kindF64, f64: func(m *Measurement) *float64 { return &m.S1SIGConnEstabAtt }})
	reg(fieldInfo{name: "S1SIG.ConnEstabSucc", kind: kindF64, f64: func(m *Measurement) *float64 { return &m.S1SIGConnEstabSucc }})

	reg(fieldInfo{name: "ERAB.EstabInitAttNbr.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.ERABEstabInitAttNbr }})
	reg(fieldInfo{name: "ERAB.EstabInitSuccNbr.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.ERABEstabInitSuccNbr }})
	reg(fieldInfo{name: "ERAB.EstabAddAttNbr.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.ERABEstabAddAttNbr }})
	reg(fieldInfo{name: "ERAB.EstabAddSuccNbr.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.ERABEstabAddSuccNbr }})

	reg(fieldInfo{name: "DRB.IPVolDl.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.DRBIPVolDl }})
	reg(fieldInfo{name: "DRB.IPVolUl.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.DRBIPVolUl }})
	reg(fieldInfo{name: "DRB.IPTimeDl.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.DRBIPTimeDl }})
	reg(fieldInfo{name: "DRB.IPTimeUl.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.DRBIPTimeUl }})
	reg(fieldInfo{name: "XXX.DRB.IPTimeDl_err.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.DRBIPTimeDlErr }})
	reg(fieldInfo{name: "XXX.DRB.IPTimeUl_err.QCI", kind: kindQCIArray, qciArr: func(m *Measurement) *QCIArray { return &m.DRBIPTimeUlErr }})

	reg(fieldInfo{name: "DRB.UEActive", kind: kindStatT, statT: func(m *Measurement) *StatT { return &m.DRBUEActive }})
	reg(fieldInfo{name: "DRB.IPLatDl.QCI", kind: kindStatQCIArray, statQCI: func(m *Measurement) *StatQCIArray { return &m.DRBIPLatDl }})
}

// FieldNames returns every registered field name, for tests that want to
// exercise "every field starts NA" generically.
func FieldNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// parsedRef is the result of parsing a dotted field reference that may
// address a whole array field ("ERAB.EstabInitAttNbr.QCI"), one indexed
// element of it ("ERAB.EstabInitAttNbr.QCI.5"), or its derived sum
// ("ERAB.EstabInitAttNbr.sum").
type parsedRef struct {
	base  string // registered array field name, e.g. "....QCI"
	index int    // valid iff hasIndex
	hasIndex bool
	isSum bool
}

func parseRef(name string) parsedRef {
	// Try "<base>.QCI.<k>"
	if i := strings.Index(name, ".QCI."); i >= 0 {
		base := name[:i+len(".QCI")]
		idxStr := name[i+len(".QCI."):]
		if idx, err := strconv.Atoi(idxStr); err == nil {
			return parsedRef{base: base, index: idx, hasIndex: true}
		}
	}
	// Try "<base>.sum" where "<base>.QCI" or "<base>.CAUSE" is registered.
	if strings.HasSuffix(name, ".sum") {
		stem := strings.TrimSuffix(name, ".sum")
		if _, ok := registry[stem+".QCI"]; ok {
			return parsedRef{base: stem + ".QCI", isSum: true}
		}
		if _, ok := registry[stem+".CAUSE"]; ok {
			return parsedRef{base: stem + ".CAUSE", isSum: true}
		}
	}
	return parsedRef{base: name}
}

// GetF64 returns the value of a scalar float64 field, by registered name.
func GetF64(m *Measurement, name string) (float64, bool) {
	fi, ok := registry[name]
	if !ok || fi.kind != kindF64 {
		return 0, false
	}
	return *fi.f64(m), true
}

// GetQCI returns element k of a QCI-indexed array field, addressed either
// by its base array name ("X.QCI") plus k, or by the combined alias
// ("X.QCI.k").
func GetQCI(m *Measurement, name string, k int) (float64, bool) {
	ref := parseRef(name)
	base := ref.base
	if ref.hasIndex {
		k = ref.index
	}
	fi, ok := registry[base]
	if !ok || fi.kind != kindQCIArray {
		return 0, false
	}
	if k < 0 || k >= NumQCI {
		return 0, false
	}
	return fi.qciArr(m).V[k], true
}

// SumQCI returns the Σqci aggregate of a QCI or cause-indexed array field,
// addressed either by its base name or by the "X.sum" alias. This is the
// function the spec calls Σqci(m, "X.QCI").
func SumQCI(m *Measurement, name string) (float64, bool) {
	ref := parseRef(name)
	if fi, ok := registry[ref.base]; ok {
		switch fi.kind {
		case kindQCIArray:
			return fi.qciArr(m).SumQCI(), true
		case kindCauseArray:
			return fi.causeArr(m).SumCause(), true
		}
	}
	return 0, false
}

// IsNA reports whether the named field is entirely NA.
func IsNA(m *Measurement, name string) (bool, error) {
	fi, ok := registry[name]
	if !ok {
		return false, fmt.Errorf("measurement: unknown field %q", name)
	}
	switch fi.kind {
	case kindF64:
		return IsNaF(*fi.f64(m)), nil
	case kindQCIArray:
		return fi.qciArr(m).IsNA(), nil
	case kindCauseArray:
		return fi.causeArr(m).IsNA(), nil
	case kindStatT:
		return fi.statT(m).IsNA(), nil
	case kindStatQCIArray:
		return fi.statQCI(m).IsNA(), nil
	}
	return false, fmt.Errorf("measurement: field %q has unhandled kind", name)
}

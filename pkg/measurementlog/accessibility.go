package measurementlog

import "github.com/navytux/xlte/pkg/kpi"

// ERABAccessibility computes the pair of E-RAB accessibility KPIs (TS
// 32.450 §6.2.1.1): InitialEPSBEstabSR and AddedEPSBEstabSR, over the
// given window.
func ERABAccessibility(w *Window) (initialEPSB, addedEPSB kpi.Interval) {
	x := SuccessRate(w, "RRC.ConnEstabAtt.CAUSE", "RRC.ConnEstabSucc.CAUSE")
	y := SuccessRate(w, "S1SIG.ConnEstabAtt", "S1SIG.ConnEstabSucc")
	z := SuccessRate(w, "ERAB.EstabInitAttNbr.QCI", "ERAB.EstabInitSuccNbr.QCI")

	initialEPSB = x.Mul(y).Mul(z).Scale(100)

	addedEPSB = SuccessRate(w, "ERAB.EstabAddAttNbr.QCI", "ERAB.EstabAddSuccNbr.QCI").Scale(100)
	return
}

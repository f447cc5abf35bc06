package measurement

// Measurement is a single fixed-schema performance-measurement record: the
// KPI-relevant subset of the 3GPP TS 32.450/32.425 performance measurement
// families produced by one polling period. New() sets every field to its NA
// sentinel; the Go zero value of Measurement is all zeros, not NA, so always
// build new records through New().
type Measurement struct {
	// Tstart is the start time of the record, in seconds since the Unix
	// epoch. Mandatory: never NA in a record accepted by MeasurementLog.
	Tstart float64
	// DT is the duration of the record, in seconds. Mandatory: never NA.
	DT float64

	// RRCConnEstabAtt/Succ are RRC.ConnEstab{Att,Succ}.CAUSE, indexed by
	// establishment cause.
	RRCConnEstabAtt  CauseArray
	RRCConnEstabSucc CauseArray

	// S1SIGConnEstabAtt/Succ are S1SIG.ConnEstab{Att,Succ}.
	S1SIGConnEstabAtt  float64
	S1SIGConnEstabSucc float64

	// ERABEstabInit{Att,Succ}Nbr are ERAB.EstabInit{Att,Succ}Nbr.QCI.
	ERABEstabInitAttNbr  QCIArray
	ERABEstabInitSuccNbr QCIArray
	// ERABEstabAdd{Att,Succ}Nbr are ERAB.EstabAdd{Att,Succ}Nbr.QCI.
	ERABEstabAddAttNbr  QCIArray
	ERABEstabAddSuccNbr QCIArray

	// DRBIPVol{Dl,Ul} are DRB.IPVol{Dl,Ul}.QCI, in bits.
	DRBIPVolDl QCIArray
	DRBIPVolUl QCIArray
	// DRBIPTime{Dl,Ul} are DRB.IPTime{Dl,Ul}.QCI, in seconds.
	DRBIPTimeDl QCIArray
	DRBIPTimeUl QCIArray
	// DRBIPTime{Dl,Ul}Err are XXX.DRB.IPTime{Dl,Ul}_err.QCI, the per-QCI
	// time-uncertainty half-width that DRB.IPTime.QCI carries, in seconds.
	DRBIPTimeDlErr QCIArray
	DRBIPTimeUlErr QCIArray

	// DRBUEActive is DRB.UEActive, the time-sampled count of UEs with an
	// active DRB.
	DRBUEActive StatT
	// DRBIPLatDl is DRB.IPLatDl.QCI, the per-QCI downlink IP latency
	// statistic.
	DRBIPLatDl StatQCIArray
}

// New returns a Measurement with every field set to its NA sentinel.
func New() Measurement {
	return Measurement{
		Tstart:               NaF,
		DT:                   NaF,
		RRCConnEstabAtt:      NaCauseArray(),
		RRCConnEstabSucc:     NaCauseArray(),
		S1SIGConnEstabAtt:    NaF,
		S1SIGConnEstabSucc:   NaF,
		ERABEstabInitAttNbr:  NaQCIArray(),
		ERABEstabInitSuccNbr: NaQCIArray(),
		ERABEstabAddAttNbr:   NaQCIArray(),
		ERABEstabAddSuccNbr:  NaQCIArray(),
		DRBIPVolDl:           NaQCIArray(),
		DRBIPVolUl:           NaQCIArray(),
		DRBIPTimeDl:          NaQCIArray(),
		DRBIPTimeUl:          NaQCIArray(),
		DRBIPTimeDlErr:       NaQCIArray(),
		DRBIPTimeUlErr:       NaQCIArray(),
		DRBUEActive:          NaStatT(),
		DRBIPLatDl:           NaStatQCIArray(),
	}
}

// Tend returns the end time of the record, Tstart+DT. NA if either is NA.
func (m *Measurement) Tend() float64 {
	if IsNaF(m.Tstart) || IsNaF(m.DT) {
		return NaF
	}
	return m.Tstart + m.DT
}

// CounterPair names one {Att,Succ}-style counter pair carried by
// Measurement, used by MeasurementLog's append-time validation (fini must
// never exceed init) and by Calc's success-rate helper.
type CounterPair struct {
	Name    string // base name, e.g. "ERAB.EstabInitNbr.QCI"
	AttName string
	SuccName string
}

// CounterPairs lists every {Att,Succ} counter pair in the schema.
var CounterPairs = []CounterPair{
	{Name: "RRC.ConnEstab.CAUSE", AttName: "RRC.ConnEstabAtt.CAUSE", SuccName: "RRC.ConnEstabSucc.CAUSE"},
	{Name: "S1SIG.ConnEstab", AttName: "S1SIG.ConnEstabAtt", SuccName: "S1SIG.ConnEstabSucc"},
	{Name: "ERAB.EstabInitNbr.QCI", AttName: "ERAB.EstabInitAttNbr.QCI", SuccName: "ERAB.EstabInitSuccNbr.QCI"},
	{Name: "ERAB.EstabAddNbr.QCI", AttName: "ERAB.EstabAddAttNbr.QCI", SuccName: "ERAB.EstabAddSuccNbr.QCI"},
}

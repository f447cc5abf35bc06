package drb

// utx is one UE's transmission state for one add/next cycle: its
// transmitted bytes grouped by QCI and its per-cell transport-block
// counters.
type utx struct {
	qtxBytes map[int]int64 // qci -> Σδerab with that qci
	cutx     map[int]*uCtx // cell -> per-cell transmission state
}

func newUtx() *utx {
	return &utx{qtxBytes: map[int]int64{}, cutx: map[int]*uCtx{}}
}

// uCtx is a UE's transmission state on one particular cell.
type uCtx struct {
	tx       int64
	retx     int64
	bitrate  float64
	rank     int
	xlUseAvg float64

	// txBytes is this cell's share of the total tx_bytes, as estimated by
	// ctxBytesSplitter. Zero until the splitter fills it in.
	txBytes float64
}

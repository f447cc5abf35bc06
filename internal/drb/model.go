package drb

// UEStats is the decoded response of an `ue_get {"stats": true}` eNB
// query: the per-UE, per-cell, per-ERAB transmission counters as they
// stood at UTC.
type UEStats struct {
	Time float64   `json:"time"`
	UTC  float64   `json:"utc"`
	UEs  []UEEntry `json:"ue_list"`
}

// UEEntry is one UE's entry within UEStats.
type UEEntry struct {
	EnbUEID int       `json:"enb_ue_id"`
	Cells   []UECell  `json:"cells"`
	ERABs   []ERAB    `json:"erab_list"`
}

// UECell is the per-cell transport-block counters for one UE, as reported
// under ue_list[].cells[].
type UECell struct {
	CellID    int     `json:"cell_id"`
	DlTx      int64   `json:"dl_tx"`
	DlRetx    int64   `json:"dl_retx"`
	DlBitrate float64 `json:"dl_bitrate"`
	UlTx      int64   `json:"ul_tx"`
	UlRetx    int64   `json:"ul_retx"`
	UlBitrate float64 `json:"ul_bitrate"`
	RI        int     `json:"ri"`
}

// ERAB is one UE's E-RAB entry within UEStats, as reported under
// ue_list[].erab_list[].
type ERAB struct {
	ERABID       int   `json:"erab_id"`
	QCI          int   `json:"qci"`
	DlTotalBytes int64 `json:"dl_total_bytes"`
	UlTotalBytes int64 `json:"ul_total_bytes"`
}

// Stats is the decoded response of a `stats` eNB query: per-cell
// utilization averages, used to detect congestion.
type Stats struct {
	UTC   float64              `json:"utc"`
	Cells map[string]StatsCell `json:"cells"`
}

// StatsCell is one cell's utilization entry within Stats.
type StatsCell struct {
	DlUseAvg float64 `json:"dl_use_avg"`
	UlUseAvg float64 `json:"ul_use_avg"`
}

func (c UECell) tx(dir string) int64 {
	if dir == "dl" {
		return c.DlTx
	}
	return c.UlTx
}

func (c UECell) retx(dir string) int64 {
	if dir == "dl" {
		return c.DlRetx
	}
	return c.UlRetx
}

func (c UECell) bitrate(dir string) float64 {
	if dir == "dl" {
		return c.DlBitrate
	}
	return c.UlBitrate
}

func (c StatsCell) useAvg(dir string) float64 {
	if dir == "dl" {
		return c.DlUseAvg
	}
	return c.UlUseAvg
}

func (e ERAB) totalBytes(dir string) int64 {
	if dir == "dl" {
		return e.DlTotalBytes
	}
	return e.UlTotalBytes
}

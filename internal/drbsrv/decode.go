package drbsrv

import (
	"github.com/navytux/xlte/internal/drb"
	"github.com/navytux/xlte/internal/wsconn"
)

// decodeUEStats extracts the fields drb.Sampler needs out of a raw
// "ue_get[stats]" reply. Missing/malformed entries are simply dropped -
// the sampler is built to tolerate UEs or cells that come and go.
func decodeUEStats(msg wsconn.Msg) *drb.UEStats {
	out := &drb.UEStats{}
	out.Time, _ = msg.Float("time")
	out.UTC, _ = msg.Float("utc")

	uesRaw, _ := msg["ue_list"].([]any)
	for _, uRaw := range uesRaw {
		u, ok := uRaw.(map[string]any)
		if !ok {
			continue
		}
		entry := drb.UEEntry{}
		entry.EnbUEID = intOf(u["enb_ue_id"])

		if cellsRaw, ok := u["cells"].([]any); ok {
			for _, cRaw := range cellsRaw {
				c, ok := cRaw.(map[string]any)
				if !ok {
					continue
				}
				cell := drb.UECell{
					CellID:    intOf(c["cell_id"]),
					DlTx:      int64Of(c["dl_tx"]),
					DlRetx:    int64Of(c["dl_retx"]),
					DlBitrate: floatOf(c["dl_bitrate"]),
					UlTx:      int64Of(c["ul_tx"]),
					UlRetx:    int64Of(c["ul_retx"]),
					UlBitrate: floatOf(c["ul_bitrate"]),
					RI:        intOf(c["ri"]),
				}
				entry.Cells = append(entry.Cells, cell)
			}
		}

		if erabsRaw, ok := u["erab_list"].([]any); ok {
			for _, eRaw := range erabsRaw {
				e, ok := eRaw.(map[string]any)
				if !ok {
					continue
				}
				entry.ERABs = append(entry.ERABs, drb.ERAB{
					ERABID:       intOf(e["erab_id"]),
					QCI:          intOf(e["qci"]),
					DlTotalBytes: int64Of(e["dl_total_bytes"]),
					UlTotalBytes: int64Of(e["ul_total_bytes"]),
				})
			}
		}

		out.UEs = append(out.UEs, entry)
	}
	return out
}

// decodeStats extracts the fields drb.Sampler needs out of a raw "stats"
// reply.
func decodeStats(msg wsconn.Msg) *drb.Stats {
	out := &drb.Stats{Cells: map[string]drb.StatsCell{}}
	out.UTC, _ = msg.Float("utc")

	cellsRaw, _ := msg["cells"].(map[string]any)
	for id, cRaw := range cellsRaw {
		c, ok := cRaw.(map[string]any)
		if !ok {
			continue
		}
		out.Cells[id] = drb.StatsCell{
			DlUseAvg: floatOf(c["dl_use_avg"]),
			UlUseAvg: floatOf(c["ul_use_avg"]),
		}
	}
	return out
}

func floatOf(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

func intOf(v any) int     { return int(floatOf(v)) }
func int64Of(v any) int64 { return int64(floatOf(v)) }

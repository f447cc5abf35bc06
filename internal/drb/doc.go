// Package drb processes per-UE data radio bearer flows obtained from
// ue_get[stats]/stats eNB queries into Samples that represent bursts of
// continuous transmission, and aggregates those samples into the
// information needed to compute the E-UTRAN IP Throughput KPI (TS 32.450
// §6.3.1, TS 32.425 §4.4.6).
//
// The eNB reports two counters on different schedules: erab.*_total_bytes
// is updated right after data is handed to PDCCH/PDSCH, while
// cell.{dl,ul}_tx/{dl,ul}_retx only updates once the HARQ ACK/NACK for
// that transmission has been received, 4 to 13 TTIs later. BitSync
// resynchronizes the two streams before Sampler turns them into Samples.
package drb

import "time"

// Tti is the LTE transmission time interval: one subframe.
const Tti = 1 * time.Millisecond

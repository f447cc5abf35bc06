// Command xkpi replays one or more xlog JSON-Lines files into a
// measurementlog.Log and prints the E-UTRAN accessibility and IP
// throughput KPIs (TS 32.450) computed over the requested time window.
//
// Usage:
//
//	xkpi [--from <unix-seconds>] [--to <unix-seconds>] <xlog-file> [<xlog-file>...]
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/navytux/xlte/internal/driver"
	_ "github.com/navytux/xlte/internal/metrics"
	"github.com/navytux/xlte/pkg/measurementlog"
	"github.com/navytux/xlte/pkg/xlogreader"
)

var (
	flagFrom = flag.Float64("from", math.Inf(-1), "window start, unix seconds (default: earliest record)")
	flagTo   = flag.Float64("to", math.Inf(1), "window end, unix seconds (default: latest record)")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [--from <t>] [--to <t>] <xlog-file> [<xlog-file>...]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	logger := log.Default()
	mlog := measurementlog.New()

	for _, path := range args {
		rtx.Must(replayFile(path, mlog, logger), "failed to replay %s", path)
	}

	tLo, tHi := *flagFrom, *flagTo
	if n := mlog.Len(); n > 0 {
		if math.IsInf(tLo, -1) {
			tLo = mlog.At(0).Tstart
		}
		if math.IsInf(tHi, 1) {
			last := mlog.At(n - 1)
			tHi = last.Tstart + last.DT
		}
	}
	w := measurementlog.Calc(mlog, tLo, tHi)
	printKPI(w)
}

// replayFile opens path and drains it through internal/driver into mlog.
func replayFile(path string, mlog *measurementlog.Log, logger *log.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := xlogreader.New(f, path)
	d := driver.New(r)
	return driver.Replay(d, mlog, logger)
}

func printKPI(w *measurementlog.Window) {
	fmt.Printf("window: [%v, %v)\n", w.TLo, w.THi)

	initialEPSB, addedEPSB := measurementlog.ERABAccessibility(w)
	fmt.Printf("E-RAB Accessibility:\n")
	fmt.Printf("  InitialEPSBEstabSR = %s %%\n", initialEPSB)
	fmt.Printf("  AddedEPSBEstabSR   = %s %%\n", addedEPSB)

	thp := measurementlog.IPThroughput(w)
	if len(thp) == 0 {
		fmt.Printf("E-UTRAN IP Throughput: no data\n")
		return
	}
	var qciv []int
	for qci := range thp {
		qciv = append(qciv, qci)
	}
	sort.Ints(qciv)
	fmt.Printf("E-UTRAN IP Throughput (bit/s):\n")
	for _, qci := range qciv {
		t := thp[qci]
		fmt.Printf("  QCI %3d: dl = %s  ul = %s\n", qci, t.Dl, t.Ul)
	}
}

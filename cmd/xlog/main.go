// Command xlog connects to an Amarisoft-style LTE/5G base station over its
// WebSocket JSON-RPC interface and continuously polls it, writing every
// reply and scheduler bookkeeping event as xlog JSON-Lines to a file.
//
// Usage:
//
//	xlog [--rotate <N>(KB|MB|GB|sec|min|hour|day).<nbackup>] [--password <pw>] <wsuri> <output> <spec> [<spec>...]
//
// <spec> is "<query>[<opt,opt,...>]/<period>s", e.g. "stats[rf,lte]/10s".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	_ "github.com/navytux/xlte/internal/drbsrv"
	_ "github.com/navytux/xlte/internal/metrics"
	"github.com/navytux/xlte/internal/sched"
	"github.com/navytux/xlte/pkg/xlogfmt"
)

var (
	flagRotate   = flag.String("rotate", "", "rotate the output as <N>(KB|MB|GB|sec|min|hour|day).<nbackup>")
	flagPassword = flag.String("password", "", "password to authenticate to the base station with, if it challenges for one")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [--rotate <spec>] [--password <pw>] <wsuri> <output> <spec> [<spec>...]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		usage()
		os.Exit(2)
	}
	wsuri, output := args[0], args[1]

	var specv []xlogfmt.LogSpec
	for _, s := range args[2:] {
		l, err := xlogfmt.ParseLogSpec(s)
		rtx.Must(err, "invalid spec %q", s)
		specv = append(specv, l)
	}

	var w sched.Writer
	if *flagRotate != "" {
		rs, err := sched.ParseRotateSpec(*flagRotate)
		rtx.Must(err, "invalid --rotate spec")
		rw, err := sched.NewRotatingWriter(output, rs)
		rtx.Must(err, "failed to open output")
		w = rw
	} else {
		pw, err := sched.NewPlainWriter(output)
		rtx.Must(err, "failed to open output")
		w = pw
	}
	defer w.Close()

	logger := log.Default()

	s, err := sched.New(wsuri, *flagPassword, specv, w, logger)
	rtx.Must(err, "failed to set up scheduler")

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := s.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("xlog: exiting", "err", err)
		os.Exit(1)
	}
}

// Package drbsrv implements the synthetic "x.drb_stats" sub-server:
// it polls a base station at 100 Hz with both `ue_get[stats]` and `stats`
// queries, feeds the results to a drb.Sampler, and answers client requests
// (a Scheduler firing the "x.drb_stats" LogSpec) with the per-QCI
// DL/UL byte/time totals accumulated since the last request - the raw
// material the KPI layer turns into the E-UTRAN IP Throughput KPI.
package drbsrv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/m-lab/go/memoryless"

	"github.com/navytux/xlte/internal/drb"
	"github.com/navytux/xlte/internal/wsconn"
)

var errServerClosed = errors.New("drbsrv: server closed")

// pollPeriod is the target period of both pollers. The base station
// rate-limits websocket requests to no faster than this, so polling
// faster would just starve one poller in favor of the other.
const pollPeriod = 10 * time.Millisecond

type reqMsg struct {
	opts    wsconn.Msg
	replyCh chan reqReply
}

type reqReply struct {
	msg wsconn.Msg
	err error
}

// qciAccum accumulates Sample data for one QCI, for one direction, across
// every add() since the last client request.
type qciAccum struct {
	txBytes   int64
	txTime    time.Duration
	txTimeErr time.Duration

	txTimeNoTailTti    time.Duration
	txTimeNoTailTtiErr time.Duration

	nsamples int64
}

// Server is a SynthServer for "x.drb_stats" (see internal/sched.SynthServer).
type Server struct {
	connUE    *wsconn.Conn
	connStats *wsconn.Conn

	reqCh  chan reqMsg
	cancel context.CancelFunc
	done   chan struct{}
}

// New connects to wsuri (on two independent connections, one per poller)
// and starts the polling loop.
func New(ctx context.Context, wsuri string) (*Server, error) {
	connUE, err := wsconn.Connect(ctx, wsuri, "")
	if err != nil {
		return nil, fmt.Errorf("drbsrv: connect (ue_get): %w", err)
	}
	connStats, err := wsconn.Connect(ctx, wsuri, "")
	if err != nil {
		connUE.Close()
		return nil, fmt.Errorf("drbsrv: connect (stats): %w", err)
	}

	// issue a dummy stats query first: with initial_delay=0 it reports
	// little, but it makes the next stats query avoid a ~0.4s internal
	// base-station warm-up pause.
	if _, err := connStats.Req(ctx, "stats", wsconn.Msg{"initial_delay": 0}); err != nil {
		connUE.Close()
		connStats.Close()
		return nil, fmt.Errorf("drbsrv: initial stats: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		connUE:    connUE,
		connStats: connStats,
		reqCh:     make(chan reqMsg),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

// Req asks the server for the accumulated stats since the last Req.
func (s *Server) Req(ctx context.Context, opts wsconn.Msg) (wsconn.Msg, error) {
	rc := make(chan reqReply, 1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errServerClosed
	case s.reqCh <- reqMsg{opts: opts, replyCh: rc}:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errServerClosed
	case r := <-rc:
		return r.msg, r.err
	}
}

// Close stops the polling loop and releases both connections.
func (s *Server) Close() {
	s.cancel()
	<-s.done
	s.connUE.Close()
	s.connStats.Close()
}

func (s *Server) run(ctx context.Context) {
	defer close(s.done)

	ueCh := make(chan *drb.UEStats, 1)
	statsCh := make(chan *drb.Stats, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.pollUE(ctx, ueCh) }()
	go func() { defer wg.Done(); s.pollStats(ctx, statsCh) }()
	defer wg.Wait()

	ueStats0 := <-ueCh
	stats0 := <-statsCh
	if ueStats0 == nil || stats0 == nil {
		return // context canceled before first samples arrived
	}

	sampler := drb.NewSampler(ueStats0, stats0)
	dlAcc := map[int]*qciAccum{}
	ulAcc := map[int]*qciAccum{}

	δtUE := drb.NewIncStats()
	δUEvsStats := drb.NewIncStats()
	lastUE := ueStats0.UTC

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-s.reqCh:
			_ = req.opts // base-station options are not applicable to this synthetic query

			dl, ul := sampler.Finish()
			account(dlAcc, dl)
			account(ulAcc, ul)

			reply := buildReply(ueStats0, dlAcc, ulAcc, δtUE, δUEvsStats)
			req.replyCh <- reqReply{msg: reply}

			dlAcc = map[int]*qciAccum{}
			ulAcc = map[int]*qciAccum{}
			δtUE = drb.NewIncStats()
			δUEvsStats = drb.NewIncStats()

		case ueStats := <-ueCh:
			if ueStats == nil {
				return
			}
			δtUE.Add(ueStats.UTC - lastUE)
			lastUE = ueStats.UTC
			ueStats0 = ueStats

			var stats *drb.Stats
			select {
			case stats = <-statsCh:
			case <-ctx.Done():
				return
			}
			if stats == nil {
				return
			}
			δUEvsStats.Add(ueStats.UTC - stats.UTC)

			dl, ul := sampler.Add(ueStats, stats)
			account(dlAcc, dl)
			account(ulAcc, ul)
		}
	}
}

func (s *Server) pollUE(ctx context.Context, out chan<- *drb.UEStats) {
	defer close(out)
	t, err := memoryless.NewTicker(ctx, memoryless.Config{Min: pollPeriod, Expected: pollPeriod, Max: pollPeriod})
	if err != nil {
		return
	}
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			reply, err := s.connUE.Req(ctx, "ue_get", wsconn.Msg{"stats": true})
			if err != nil {
				return
			}
			ueStats := decodeUEStats(reply)
			select {
			case out <- ueStats:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) pollStats(ctx context.Context, out chan<- *drb.Stats) {
	defer close(out)
	t, err := memoryless.NewTicker(ctx, memoryless.Config{Min: pollPeriod, Expected: pollPeriod, Max: pollPeriod})
	if err != nil {
		return
	}
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			reply, err := s.connStats.Req(ctx, "stats", wsconn.Msg{})
			if err != nil {
				return
			}
			stats := decodeStats(reply)
			select {
			case out <- stats:
			case <-ctx.Done():
				return
			}
		}
	}
}

// account folds newly finalized samples into the per-QCI accumulators,
// applying the small-transmission/ICMP filter and computing the
// no-tail-tti variant the IP Throughput KPI needs.
func account(acc map[int]*qciAccum, qciSamples map[int][]drb.Sample) {
	for qci, samples := range qciSamples {
		a, ok := acc[qci]
		if !ok {
			a = &qciAccum{}
			acc[qci] = a
		}
		for _, samp := range samples {
			tLo := samp.TxTime - samp.TxTimeErr
			tHi := samp.TxTime + samp.TxTimeErr

			// do not account transmissions too short to be meaningful: a
			// 1-tti burst should be ignored per standard, and small ICMP
			// messages sometimes span exactly 2 transport blocks.
			if tHi <= drb.Tti || (tHi <= 2*drb.Tti && samp.TxBytes < 1000) {
				continue
			}

			a.nsamples++
			a.txBytes += samp.TxBytes
			a.txTime += samp.TxTime
			a.txTimeErr += samp.TxTimeErr

			ttHi := math.Ceil(float64(tHi)/float64(drb.Tti) - 1)
			ttLo := float64(tLo) / float64(drb.Tti)
			if ttLo > 1 {
				ttLo = math.Ceil(ttLo - 1)
			}
			tt := (ttLo + ttHi) / 2
			ttErr := (ttHi - ttLo) / 2
			a.txTimeNoTailTti += time.Duration(tt * float64(drb.Tti))
			a.txTimeNoTailTtiErr += time.Duration(ttErr * float64(drb.Tti))
		}
	}
}

func buildReply(ueStats0 *drb.UEStats, dlAcc, ulAcc map[int]*qciAccum, δtUE, δUEvsStats *drb.IncStats) wsconn.Msg {
	qciDict := map[string]any{}
	qcis := map[int]bool{}
	for qci := range dlAcc {
		qcis[qci] = true
	}
	for qci := range ulAcc {
		qcis[qci] = true
	}
	zero := &qciAccum{}
	for qci := range qcis {
		dl := dlAcc[qci]
		if dl == nil {
			dl = zero
		}
		ul := ulAcc[qci]
		if ul == nil {
			ul = zero
		}
		qciDict[fmt.Sprint(qci)] = map[string]any{
			"dl_tx_bytes":              dl.txBytes,
			"dl_tx_time":               dl.txTime.Seconds(),
			"dl_tx_time_err":           dl.txTimeErr.Seconds(),
			"dl_tx_time_notailtti":     dl.txTimeNoTailTti.Seconds(),
			"dl_tx_time_notailtti_err": dl.txTimeNoTailTtiErr.Seconds(),
			"dl_tx_nsamples":           dl.nsamples,
			"ul_tx_bytes":              ul.txBytes,
			"ul_tx_time":               ul.txTime.Seconds(),
			"ul_tx_time_err":           ul.txTimeErr.Seconds(),
			"ul_tx_time_notailtti":     ul.txTimeNoTailTti.Seconds(),
			"ul_tx_time_notailtti_err": ul.txTimeNoTailTtiErr.Seconds(),
			"ul_tx_nsamples":           ul.nsamples,
		}
	}

	return wsconn.Msg{
		"message":  "x.drb_stats",
		"time":     ueStats0.Time,
		"utc":      ueStats0.UTC,
		"qci_dict": qciDict,
		"δt_ueget": map[string]any{"min": δtUE.Min, "avg": δtUE.Avg(), "max": δtUE.Max, "std": δtUE.Std()},
		"δ_ueget_vs_stats": map[string]any{
			"min": δUEvsStats.Min, "avg": δUEvsStats.Avg(), "max": δUEvsStats.Max, "std": δUEvsStats.Std(),
		},
	}
}

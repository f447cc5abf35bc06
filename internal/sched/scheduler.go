// Package sched implements the periodic query loop that turns a list of
// xlogfmt.LogSpecs into a stream of JSON-Lines records written through a
// Writer: Scheduler.Run connects to the base station, fires every spec at
// its configured period, and reconnects with backoff on failure, emitting
// "service attach"/"service detach"/"sync" bookkeeping events throughout.
package sched

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/navytux/xlte/internal/metrics"
	"github.com/navytux/xlte/internal/wsconn"
	"github.com/navytux/xlte/pkg/xlogfmt"
)

// SynthServer answers requests for one synthetic (not forwarded to the
// base station) LogSpec query, such as "x.drb_stats".
type SynthServer interface {
	Req(ctx context.Context, opts wsconn.Msg) (wsconn.Msg, error)
	Close()
}

// SynthFactory constructs a SynthServer for one synthetic query name. It
// is handed the base station's URI so it can open its own Conn, per
// spec: a sub-server owns a private connection to avoid contending with
// the main scheduler for the service's request rate limit.
type SynthFactory func(ctx context.Context, wsuri string) (SynthServer, error)

var synthRegistry = map[string]SynthFactory{}

// RegisterSynth registers a synthetic query name (e.g. "x.drb_stats") so
// that a LogSpec for it is served locally instead of being forwarded to
// the base station.
func RegisterSynth(name string, f SynthFactory) {
	synthRegistry[name] = f
}

// Scheduler drives one Conn against a normalized list of LogSpecs,
// emitting the results through a Writer.
type Scheduler struct {
	WSURI    string
	Password string
	Specs    []xlogfmt.LogSpec
	Writer   Writer
	Log      *log.Logger

	syncPeriod float64
	tsync      time.Time
	started    bool
}

// New returns a Scheduler ready to Run. specv need not already contain
// meta.sync/config_get entries - New normalizes them.
func New(wsuri, password string, specv []xlogfmt.LogSpec, w Writer, logger *log.Logger) (*Scheduler, error) {
	normalized, syncPeriod, err := xlogfmt.Normalize(specv)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		WSURI: wsuri, Password: password, Specs: normalized, Writer: w, Log: logger,
		syncPeriod: syncPeriod, tsync: time.Time{},
	}, nil
}

// Run drives the scheduler until ctx is canceled. It never returns a
// non-nil error except ctx.Err() once the context is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.emitSync(xlogfmt.StateDetached, "start", nil)
	defer s.emitSync(xlogfmt.StateDetached, "stop", nil)

	first := true
	for {
		if !first {
			metrics.ReconnectsTotal.Inc()
		}
		first = false

		err := s.cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			var connErr *wsconn.HandshakeError
			var ioErr *wsconn.ConnIOError
			if errors.As(err, &connErr) || errors.As(err, &ioErr) {
				// suppress the stack trace for expected connectivity noise
				s.Log.Warn("xlog: connection lost, reconnecting", "err", err)
			} else {
				s.Log.Error("xlog failure", "err", err)
				s.emitEvent(xlogfmt.EventXLogFailure, map[string]any{"reason": err.Error()})
			}
		}

		δtReconnect := s.syncPeriod
		if δtReconnect > 3 {
			δtReconnect = 3
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(δtReconnect * float64(time.Second))):
		}
	}
}

// cycle performs one attach/log,log,.../detach cycle: connect, spawn
// synthetic sub-servers for any LogSpec that needs one, then run the
// per-spec firing loop until the connection fails or ctx is canceled.
func (s *Scheduler) cycle(ctx context.Context) error {
	if time.Since(s.tsync) >= time.Duration(s.syncPeriod*float64(time.Second)) && s.started {
		s.emitSync(xlogfmt.StateDetached, "periodic", nil)
	}
	s.started = true

	conn, err := wsconn.Connect(ctx, s.WSURI, s.Password)
	if err != nil {
		s.emitEvent(xlogfmt.EventServiceConnectFailed, map[string]any{"reason": err.Error()})
		return err
	}
	defer conn.Close()

	srvInfo := map[string]any{
		"srv_name": conn.Name(), "srv_type": conn.Type(), "srv_version": conn.Version(),
		"conn_id": conn.ID,
	}
	attach := map[string]any{}
	for k, v := range srvInfo {
		attach[k] = v
	}
	for k, v := range conn.WelcomeMsg {
		switch k {
		case "message", "type", "name", "version":
			continue
		}
		attach["srv_"+k] = v
	}
	s.emitEvent(xlogfmt.EventServiceAttach, attach)

	synths := map[string]SynthServer{}
	for _, l := range s.Specs {
		if factory, ok := synthRegistry[l.Query]; ok {
			if _, already := synths[l.Query]; already {
				continue
			}
			srv, err := factory(ctx, s.WSURI)
			if err != nil {
				detach := map[string]any{"reason": err.Error()}
				for k, v := range srvInfo {
					detach[k] = v
				}
				s.emitEvent(xlogfmt.EventServiceDetach, detach)
				return err
			}
			synths[l.Query] = srv
		}
	}
	defer func() {
		for _, srv := range synths {
			srv.Close()
		}
	}()

	err = s.runSpecs(ctx, conn, synths)
	detach := map[string]any{"reason": errString(err)}
	for k, v := range srvInfo {
		detach[k] = v
	}
	s.emitEvent(xlogfmt.EventServiceDetach, detach)
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runSpecs fires every LogSpec at its own period, picking at each
// iteration the spec with the smallest next-fire time (ties broken by
// list order), until ctx is canceled or a query fails.
func (s *Scheduler) runSpecs(ctx context.Context, conn *wsconn.Conn, synths map[string]SynthServer) error {
	t0 := time.Now()
	tnext := make([]float64, len(s.Specs))

	srvTime, _ := conn.WelcomeMsg.Float("time")
	srvUTC, haveUTC := conn.WelcomeMsg.Float("utc")
	tRx := conn.WelcomeRecvTime

	for {
		// pick the spec with the smallest next-fire time
		imin := 0
		for i := 1; i < len(tnext); i++ {
			if tnext[i] < tnext[imin] {
				imin = i
			}
		}
		l := s.Specs[imin]

		fireAt := t0.Add(time.Duration(tnext[imin] * float64(time.Second)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(fireAt)):
		}
		tnext[imin] += l.Period

		if l.Query == "meta.sync" {
			δ := time.Since(tRx).Seconds()
			args := map[string]any{"srv_time": srvTime + δ}
			if haveUTC {
				args["srv_utc"] = srvUTC + δ
			}
			s.emitSync(xlogfmt.StateAttached, "periodic", args)
			continue
		}

		opts := wsconn.Msg{}
		for _, o := range l.Opts {
			if o != "" {
				opts[o] = true
			}
		}

		metrics.RequestsTotal.WithLabelValues(l.Query).Inc()

		var reply wsconn.Msg
		var err error
		if srv, ok := synths[l.Query]; ok {
			reply, err = srv.Req(ctx, opts)
		} else {
			reply, err = conn.Req(ctx, l.Query, opts)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", l.Query, err)
		}

		if t, ok := reply.Float("time"); ok {
			srvTime = t
			tRx = time.Now()
		}
		if u, ok := reply.Float("utc"); ok {
			srvUTC = u
			haveUTC = true
		}

		s.emitRaw(reply)
	}
}

// emitRaw writes a raw base-station reply line verbatim.
func (s *Scheduler) emitRaw(msg wsconn.Msg) {
	line, err := json.Marshal(msg)
	if err != nil {
		s.Log.Error("xlog: failed to marshal reply", "err", err)
		return
	}
	if err := s.Writer.WriteLine(string(line)); err != nil {
		s.Log.Error("xlog: write failed", "err", err)
	}
}

// emitEvent writes a `{"meta": {"event": event, ...}}` line.
func (s *Scheduler) emitEvent(event string, args map[string]any) {
	d := map[string]any{"event": event, "time": float64(time.Now().UnixNano()) / 1e9}
	for k, v := range args {
		d[k] = v
	}
	s.emitMeta(d)
}

func (s *Scheduler) emitMeta(d map[string]any) {
	line, err := json.Marshal(map[string]any{"meta": d})
	if err != nil {
		s.Log.Error("xlog: failed to marshal meta event", "err", err)
		return
	}
	if err := s.Writer.WriteLine(string(line)); err != nil {
		s.Log.Error("xlog: write failed", "err", err)
	}
}

// emitSync writes a "sync" event, rotating the output around it per
// spec: if the Writer says it is time to rotate, the sync just written is
// flagged "pre-logrotate", the file is rotated, and a second sync tagged
// "post-logrotate" opens the new file. This guarantees every rotated file
// both begins and ends with a sync.
func (s *Scheduler) emitSync(state xlogfmt.SyncState, reason string, args map[string]any) {
	tnow := time.Now()
	d := map[string]any{
		"event":     xlogfmt.EventSync,
		"time":      float64(tnow.UnixNano()) / 1e9,
		"state":     string(state),
		"reason":    reason,
		"flags":     "",
		"generator": s.generator(),
	}
	for k, v := range args {
		d[k] = v
	}

	rotate := s.Writer.NeedRotate()
	if rotate {
		d["flags"] = xlogfmt.FlagPreLogrotate
	}
	s.emitMeta(d)
	s.tsync = tnow

	if rotate {
		if err := s.Writer.Rotate(); err != nil {
			s.Log.Error("xlog: rotate failed", "err", err)
			return
		}
		metrics.RotationsTotal.Inc()
		d["flags"] = xlogfmt.FlagPostLogrotate
		s.emitMeta(d)
	}
}

func (s *Scheduler) generator() string {
	rotateSpec := s.Writer.RotateSpec()
	prefix := ""
	if rotateSpec != "" {
		prefix = fmt.Sprintf("--rotate %s ", rotateSpec)
	}
	specs := ""
	for i, l := range s.Specs {
		if i > 0 {
			specs += " "
		}
		specs += l.String()
	}
	return fmt.Sprintf("xlog %s%s %s", prefix, s.WSURI, specs)
}

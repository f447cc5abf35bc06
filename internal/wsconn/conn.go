// Package wsconn implements the multiplexed WebSocket JSON-RPC client used
// to talk to an Amarisoft-style LTE/5G base station: connect performs the
// handshake (with optional HMAC-SHA256 challenge/response authentication),
// and the returned Conn lets callers issue concurrent req calls that are
// demultiplexed by message_id.
package wsconn

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/navytux/xlte/internal/metrics"
)

// Msg is a decoded JSON-RPC frame, either a request we send or a reply we
// receive. Every key of the frame, including the bulk of the base station's
// vocabulary that this package does not interpret, is a plain map entry.
type Msg map[string]any

// String returns the frame's "message" field, or "" if absent/not a string.
func (m Msg) String() string {
	s, _ := m["message"].(string)
	return s
}

// Float returns m[key] as a float64, or ok=false if the key is absent or
// not a number.
func (m Msg) Float(key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// waiter is the receiver goroutine's handoff slot for one outstanding
// request.
type waiter struct {
	request string      // request's "message" name, checked against the reply
	rxq     chan rxFrame
}

type rxFrame struct {
	msg Msg
	raw []byte
}

// Conn is a multiplexed WebSocket JSON-RPC connection to a single service.
//
// Invariant: every outstanding message-id maps to exactly one waiter in
// rxtab; shutdown is one-shot (guarded by downOnce) and wakes every waiter
// with the recorded cause.
type Conn struct {
	WSURI string
	// ID correlates this Conn's log lines across reconnects; it has no
	// meaning to the base station.
	ID string

	ws *websocket.Conn

	// Welcome frame retained from the handshake, and the local time it
	// was received at - used by callers that need to extrapolate the
	// server's clock between requests.
	WelcomeMsg Msg
	WelcomeRecvTime time.Time

	mu        sync.Mutex
	rxtab     map[int64]*waiter // nil once shut down
	msgidNext int64

	// wmu serializes every write to ws - gorilla/websocket allows only
	// one concurrent writer, and Req/ReqRaw are meant to be called
	// concurrently.
	wmu sync.Mutex

	downErr  error
	downOnce sync.Once
	rxDone   chan struct{}

	readTimeout time.Duration
}

// Connect dials wsuri, performs the welcome handshake (authenticating with
// password if the server challenges for it) and returns a ready Conn.
func Connect(ctx context.Context, wsuri string, password string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsuri, nil)
	if err != nil {
		metrics.ConnAttemptsTotal.WithLabelValues("io_error").Inc()
		return nil, &HandshakeError{Err: err}
	}

	c := &Conn{
		WSURI:       wsuri,
		ID:          uuid.NewString(),
		ws:          ws,
		rxtab:       map[int64]*waiter{},
		msgidNext:   1,
		rxDone:      make(chan struct{}),
		readTimeout: 5 * time.Second,
	}

	if err := c.handshake(password); err != nil {
		ws.Close()
		metrics.ConnAttemptsTotal.WithLabelValues("handshake_error").Inc()
		return nil, &HandshakeError{Err: err}
	}

	metrics.ConnAttemptsTotal.WithLabelValues("ok").Inc()
	go c.serveRecv()
	return c, nil
}

func (c *Conn) handshake(password string) error {
	c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return err
	}
	t0 := time.Now()

	var msg0 Msg
	if err := json.Unmarshal(raw, &msg0); err != nil {
		return fmt.Errorf("decode welcome frame: %w", err)
	}

	switch msg0.String() {
	case "ready":
		// no authentication required

	case "authenticate":
		if password == "" {
			return fmt.Errorf("service requires authentication, but no password was given")
		}
		typ, _ := msg0["type"].(string)
		name, _ := msg0["name"].(string)
		challenge, _ := msg0["challenge"].(string)
		key := fmt.Sprintf("%s:%s:%s", typ, password, name)
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write([]byte(challenge))
		res := hex.EncodeToString(mac.Sum(nil))

		if err := c.ws.WriteJSON(Msg{"message": "authenticate", "res": res}); err != nil {
			return fmt.Errorf("send authenticate: %w", err)
		}

		var ack Msg
		if err := c.ws.ReadJSON(&ack); err != nil {
			return fmt.Errorf("read authenticate reply: %w", err)
		}
		if ack.String() != "authenticate" {
			return fmt.Errorf("unexpected authenticate reply: %v", ack)
		}
		if ready, _ := ack["ready"].(bool); !ready {
			return fmt.Errorf("authentication failure: %v", ack["error"])
		}

	default:
		return fmt.Errorf("unexpected welcome message: %v", msg0)
	}

	c.WelcomeMsg = msg0
	c.WelcomeRecvTime = t0
	return nil
}

// Close idempotently shuts the connection down: it marks it down, wakes
// every pending waiter with ConnClosed, and aborts the underlying socket
// to unblock the receiver goroutine, then waits for that goroutine to
// exit.
func (c *Conn) Close() error {
	c.shutdown(ErrConnClosed)
	<-c.rxDone
	if c.downErr != ErrConnClosed {
		return &ConnIOError{Op: "close", Err: c.downErr}
	}
	return nil
}

// shutdown brings the connection down due to err. Only the first call has
// effect.
func (c *Conn) shutdown(err error) {
	c.downOnce.Do(func() {
		c.mu.Lock()
		c.downErr = err
		rxtab := c.rxtab
		c.rxtab = nil // disallow further sendMsg calls
		c.mu.Unlock()

		for _, w := range rxtab {
			close(w.rxq)
		}
		c.ws.Close() // unblocks serveRecv's ReadMessage
	})
}

// serveRecv reads frames from the socket forever, demultiplexing each to
// its waiter by message_id, until the socket errors or is closed.
func (c *Conn) serveRecv() {
	defer close(c.rxDone)

	err := c.doServeRecv()
	c.shutdown(err)
}

func (c *Conn) doServeRecv() error {
	for {
		c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				// ignore the global read timeout: req() enforces its own
				// per-request timeout independently.
				continue
			}
			return &ConnIOError{Op: "recv", Err: err}
		}
		if len(raw) == 0 {
			return &ConnIOError{Op: "recv", Err: fmt.Errorf("connection closed by peer")}
		}

		var rx Msg
		if err := json.Unmarshal(raw, &rx); err != nil {
			return &ConnIOError{Op: "recv", Err: fmt.Errorf("decode frame: %w", err)}
		}

		midf, ok := rx["message_id"].(float64)
		if !ok {
			// events (frames without message_id) are not modeled by this
			// client; the toolkit only ever issues req-style queries.
			continue
		}
		msgid := int64(midf)
		delete(rx, "message_id")

		c.mu.Lock()
		if c.rxtab == nil {
			c.mu.Unlock()
			return c.downErr
		}
		w, ok := c.rxtab[msgid]
		if ok {
			delete(c.rxtab, msgid)
		}
		c.mu.Unlock()

		if !ok {
			return &ConnIOError{Op: "recv", Err: fmt.Errorf("unexpected reply .%d %v", msgid, rx)}
		}
		if rx.String() != w.request {
			return &ReplyMismatchError{MsgID: msgid, Got: rx.String(), Want: w.request}
		}

		w.rxq <- rxFrame{msg: rx, raw: raw}
	}
}

// Req sends a request named query with the given options and waits for
// the matching reply.
func (c *Conn) Req(ctx context.Context, query string, opts Msg) (Msg, error) {
	rx, _, err := c.ReqRaw(ctx, query, opts)
	return rx, err
}

// ReqRaw is like Req but also returns the reply's undecoded bytes.
func (c *Conn) ReqRaw(ctx context.Context, query string, opts Msg) (Msg, []byte, error) {
	rxq, err := c.sendMsg(query, opts)
	if err != nil {
		return nil, nil, err
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case f, ok := <-rxq:
		if !ok {
			return nil, nil, &ConnIOError{Op: "recv", Err: c.downErr}
		}
		return f.msg, f.raw, nil
	}
}

func (c *Conn) sendMsg(query string, opts Msg) (chan rxFrame, error) {
	if _, bad := opts["message"]; bad {
		panic("wsconn: opts must not set \"message\"")
	}
	if _, bad := opts["message_id"]; bad {
		panic("wsconn: opts must not set \"message_id\"")
	}

	rxq := make(chan rxFrame, 1)

	c.mu.Lock()
	if c.rxtab == nil {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	msgid := c.msgidNext
	c.msgidNext++
	c.rxtab[msgid] = &waiter{request: query, rxq: rxq}
	c.mu.Unlock()

	frame := Msg{"message": query, "message_id": msgid}
	for k, v := range opts {
		frame[k] = v
	}

	c.wmu.Lock()
	err := c.ws.WriteJSON(frame)
	c.wmu.Unlock()
	if err != nil {
		return nil, &ConnIOError{Op: "send", Err: err}
	}
	return rxq, nil
}

// Type, Name and Version return the service identity reported in the
// welcome frame.
func (c *Conn) Type() string    { s, _ := c.WelcomeMsg["type"].(string); return s }
func (c *Conn) Name() string    { s, _ := c.WelcomeMsg["name"].(string); return s }
func (c *Conn) Version() string { s, _ := c.WelcomeMsg["version"].(string); return s }

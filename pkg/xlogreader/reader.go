package xlogreader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/navytux/xlte/internal/metrics"
	"github.com/navytux/xlte/pkg/xlogfmt"
)

// lineSource is the minimal interface Reader needs to pull raw lines from,
// either forwards or backwards.
type lineSource interface {
	readLine() ([]byte, error) // io.EOF at end of stream
}

type forwardLineSource struct {
	sc *bufio.Scanner
}

func newForwardLineSource(r io.Reader) *forwardLineSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &forwardLineSource{sc: sc}
}

func (f *forwardLineSource) readLine() ([]byte, error) {
	if !f.sc.Scan() {
		if err := f.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return f.sc.Bytes(), nil
}

// Reader turns a stream of xlog JSON-Lines entries into typed Message/
// Event/SyncEvent values, reading either forwards (New) or backwards
// (NewReverse) and recovering "utc" for old-style entries that only carry
// eNB-local "time" by tracking the sync event that covers them.
type Reader struct {
	lr      lineSource
	name    string
	reverse bool
	lineno  int

	sync    *SyncEvent
	nNoSync int
	emsgq   []any // Entry or error, queued while reading ahead for a covering sync
}

// New returns a Reader that reads r forwards, from start to end.
func New(r io.Reader, name string) *Reader {
	return &Reader{lr: newForwardLineSource(r), name: name}
}

// NewReverse returns a Reader that reads r backwards, from end to start.
// r must support Seek so the reader can walk backwards through it
// efficiently without loading the whole stream into memory.
func NewReverse(r io.ReadSeeker, name string) (*Reader, error) {
	rr, err := newReverseLineReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{lr: rr, name: name, reverse: true}, nil
}

// Read returns the next xlog entry (*Message, *Event or *SyncEvent), or
// io.EOF once the stream is exhausted. A *ParseError or *LOSError is
// returned as err with a nil entry; the Reader remains usable afterwards -
// call Read again to continue past the bad entry.
func (xr *Reader) Read() (Entry, error) {
	for {
		if len(xr.emsgq) > 0 {
			x := xr.emsgq[0]
			xr.emsgq = xr.emsgq[1:]

			switch v := x.(type) {
			case error:
				xr.sync = nil
				return nil, v
			case *Message:
				if err := xr.fillTimestamp(v); err != nil {
					return nil, err
				}
				return v, nil
			case *SyncEvent:
				if v.State == string(xlogfmt.StateAttached) {
					// readahead already set xr.sync = v
				} else {
					xr.sync = nil
				}
				return v, nil
			case *Event:
				xr.sync = nil
				return v, nil
			default:
				panic(fmt.Sprintf("xlogreader: unexpected queued entry %T", x))
			}
		}

		// read ahead, looking for a sync to cover any queued messages
		for {
			x, err := xr.readRaw()
			if err == io.EOF {
				if len(xr.emsgq) == 0 {
					return nil, io.EOF
				}
				break // flush the queue
			}

			var item any
			if err != nil {
				item = err
				if _, ok := err.(*ParseError); ok {
					metrics.ParseErrorsTotal.Inc()
				}
			} else {
				item = x
			}
			xr.emsgq = append(xr.emsgq, item)

			if se, ok := item.(*SyncEvent); ok {
				xr.nNoSync = 0
				if se.State == string(xlogfmt.StateAttached) {
					xr.sync = se
				}
			} else {
				xr.nNoSync++
				if xr.nNoSync > xlogfmt.LOSWindow {
					metrics.LOSEventsTotal.Inc()
					xr.emsgq = append(xr.emsgq, &LOSError{
						Pos: Position{Name: xr.name, Line: xr.lineno}, N: xr.nNoSync,
					})
				}
			}

			if _, ok := item.(*Message); ok {
				if xr.sync == nil {
					continue // keep reading ahead
				}
			}
			break
		}
	}
}

// fillTimestamp estimates m.Timestamp from the covering sync's srv_time
// when the message predates the eNB's "utc" field (added 2022-12-01).
func (xr *Reader) fillTimestamp(m *Message) error {
	if !math.IsNaN(m.Timestamp) { // already set
		return nil
	}
	if xr.sync != nil && xr.sync.SrvTime != nil {
		t, ok := floatField(m.Raw, "time")
		if ok {
			// srv_utc' = srv_time' + (sync.time - sync.srv_time)
			m.Timestamp = t + (xr.sync.Timestamp - *xr.sync.SrvTime)
			return nil
		}
	}
	return &ParseError{Pos: m.Pos, Msg: "no `utc` and cannot compute timestamp with sync"}
}

// readRaw reads and decodes one raw entry. It does not do any
// loss-of-synchronization bookkeeping - that is Read's job.
func (xr *Reader) readRaw() (Entry, error) {
	line, err := xr.lr.readLine()
	if err != nil {
		return nil, err
	}
	if xr.reverse {
		xr.lineno--
	} else {
		xr.lineno++
	}
	pos := Position{Name: xr.name, Line: xr.lineno}

	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &ParseError{Pos: pos, Msg: "invalid json: " + err.Error()}
	}

	if metaRaw, ok := raw["meta"]; ok {
		meta, ok := metaRaw.(map[string]any)
		if !ok {
			return nil, &ParseError{Pos: pos, Msg: "meta: not an object"}
		}
		event, ok := stringField(meta, "event")
		if !ok {
			return nil, &ParseError{Pos: pos, Msg: "meta: no `event`"}
		}
		t, ok := floatField(meta, "time")
		if !ok {
			return nil, &ParseError{Pos: pos, Msg: "meta: no `time`"}
		}

		if event == xlogfmt.EventSync || event == xlogfmt.EventStart {
			se := &SyncEvent{Event: Event{Raw: raw, Name: xlogfmt.EventSync, Timestamp: t, Pos: pos}}
			generator, _ := stringField(meta, "generator")
			se.Generator = generator
			if event == xlogfmt.EventStart {
				se.State = string(xlogfmt.StateDetached)
				se.Reason = "start"
			} else {
				state, ok := stringField(meta, "state")
				if !ok {
					return nil, &ParseError{Pos: pos, Msg: "meta: no `state`"}
				}
				reason, ok := stringField(meta, "reason")
				if !ok {
					return nil, &ParseError{Pos: pos, Msg: "meta: no `reason`"}
				}
				se.State, se.Reason = state, reason
			}
			if v, ok := floatField(meta, "srv_time"); ok {
				se.SrvTime = &v
			}
			if v, ok := floatField(meta, "srv_utc"); ok {
				se.SrvUTC = &v
			}
			return se, nil
		}

		return &Event{Raw: raw, Name: event, Timestamp: t, Pos: pos}, nil
	}

	if _, ok := raw["message"]; ok {
		message, ok := stringField(raw, "message")
		if !ok {
			return nil, &ParseError{Pos: pos, Msg: "message: not a string"}
		}
		m := &Message{Raw: raw, Message: message, Pos: pos}
		if t, ok := floatField(raw, "utc"); ok {
			m.Timestamp = t
		} else {
			m.Timestamp = math.NaN() // filled in later from a covering sync, if any
		}
		return m, nil
	}

	return nil, &ParseError{Pos: pos, Msg: "invalid xlog entry: neither `meta` nor `message`"}
}

func stringField(d map[string]any, key string) (string, bool) {
	v, ok := d[key].(string)
	return v, ok
}

func floatField(d map[string]any, key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Close releases the underlying reader, if it supports it.
func (xr *Reader) Close() error {
	if c, ok := xr.lr.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

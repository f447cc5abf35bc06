package xlogreader

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func lines(ss ...string) string {
	return strings.Join(ss, "\n") + "\n"
}

func TestReadForwardBasic(t *testing.T) {
	text := lines(
		`{"meta":{"event":"sync","time":100,"state":"detached","reason":"start","generator":"xlog ws://x stats/10s"}}`,
		`{"message":"stats","utc":101,"cell_list":[]}`,
		`{"meta":{"event":"service attach","time":102,"srv_name":"test"}}`,
	)
	r := New(strings.NewReader(text), "test.jsonl")

	e1, err := r.Read()
	if err != nil {
		t.Fatalf("Read #1: %v", err)
	}
	se, ok := e1.(*SyncEvent)
	if !ok || se.State != "detached" || se.Reason != "start" {
		t.Fatalf("Read #1 = %#v, want a detached/start SyncEvent", e1)
	}

	e2, err := r.Read()
	if err != nil {
		t.Fatalf("Read #2: %v", err)
	}
	m, ok := e2.(*Message)
	if !ok || m.Message != "stats" || m.Timestamp != 101 {
		t.Fatalf("Read #2 = %#v, want stats message at t=101", e2)
	}

	e3, err := r.Read()
	if err != nil {
		t.Fatalf("Read #3: %v", err)
	}
	if ev, ok := e3.(*Event); !ok || ev.Name != "service attach" {
		t.Fatalf("Read #3 = %#v, want service attach Event", e3)
	}

	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("Read #4 err = %v, want io.EOF", err)
	}
}

func TestReadEstimatesTimestampFromSync(t *testing.T) {
	// an old-style message with no "utc" field must get its timestamp
	// estimated from the covering sync's srv_time.
	text := lines(
		`{"meta":{"event":"sync","time":1000,"state":"attached","reason":"periodic","generator":"g","srv_time":5}}`,
		`{"message":"stats","time":7}`,
	)
	r := New(strings.NewReader(text), "test.jsonl")

	if _, err := r.Read(); err != nil {
		t.Fatalf("Read sync: %v", err)
	}
	e, err := r.Read()
	if err != nil {
		t.Fatalf("Read message: %v", err)
	}
	m := e.(*Message)
	// timestamp = time + (sync.time - sync.srv_time) = 7 + (1000-5) = 1002
	if m.Timestamp != 1002 {
		t.Errorf("Timestamp = %v, want 1002", m.Timestamp)
	}
}

func TestReadMessageWithoutSyncIsParseError(t *testing.T) {
	text := lines(`{"message":"stats","time":7}`)
	r := New(strings.NewReader(text), "test.jsonl")

	_, err := r.Read()
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("Read err = %#v, want *ParseError", err)
	}
}

func TestReadDetectsLossOfSync(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"meta":{"event":"sync","time":0,"state":"attached","reason":"start","generator":"g","srv_time":0}}` + "\n")
	for i := 0; i < 1500; i++ {
		buf.WriteString(`{"meta":{"event":"service attach","time":1}}` + "\n")
	}

	r := New(&buf, "test.jsonl")
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read sync: %v", err)
	}

	sawLOS := false
	for i := 0; i < 1500; i++ {
		if _, err := r.Read(); err != nil {
			if _, ok := err.(*LOSError); ok {
				sawLOS = true
				break
			}
			t.Fatalf("Read #%d: unexpected err %v", i, err)
		}
	}
	if !sawLOS {
		t.Fatal("expected a LOSError after more than LOSWindow entries without sync")
	}
}

func TestReadInvalidJSON(t *testing.T) {
	r := New(strings.NewReader("not json\n"), "test.jsonl")
	_, err := r.Read()
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("Read err = %#v, want *ParseError", err)
	}
}

func TestNewReverseReadsLastLineFirst(t *testing.T) {
	text := lines(
		`{"meta":{"event":"sync","time":0,"state":"detached","reason":"start","generator":"g"}}`,
		`{"message":"stats","utc":1}`,
		`{"message":"ue_get","utc":2}`,
	)
	r, err := NewReverse(strings.NewReader(text), "test.jsonl")
	if err != nil {
		t.Fatalf("NewReverse: %v", err)
	}

	e, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	m, ok := e.(*Message)
	if !ok || m.Message != "ue_get" {
		t.Fatalf("Read = %#v, want the ue_get message (read backwards first)", e)
	}
}

package wsconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveReady runs a minimal test server that sends an unauthenticated
// "ready" welcome frame and then echoes every request back with the same
// message/message_id, plus an "echo" field carrying the request options.
func serveReady(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(Msg{"message": "ready", "type": "test", "name": "srv", "version": "1"}); err != nil {
			return
		}
		for {
			var rx Msg
			if err := conn.ReadJSON(&rx); err != nil {
				return
			}
			rx["echo"] = true
			conn.WriteJSON(rx)
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestConnectAndReq(t *testing.T) {
	srv := serveReady(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Connect(ctx, wsURL(srv.URL), "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if conn.Type() != "test" || conn.Name() != "srv" {
		t.Errorf("welcome identity = %q/%q, want test/srv", conn.Type(), conn.Name())
	}

	reply, err := conn.Req(ctx, "stats", Msg{"initial_delay": 0})
	if err != nil {
		t.Fatalf("Req: %v", err)
	}
	if reply.String() != "stats" {
		t.Errorf("reply message = %q, want stats", reply.String())
	}
	if echo, _ := reply["echo"].(bool); !echo {
		t.Errorf("reply missing echo field: %v", reply)
	}
}

func TestReqAfterCloseFails(t *testing.T) {
	srv := serveReady(t)
	defer srv.Close()

	ctx := context.Background()
	conn, err := Connect(ctx, wsURL(srv.URL), "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()

	if _, err := conn.Req(ctx, "stats", Msg{}); err == nil {
		t.Fatal("Req after Close: expected error, got nil")
	}
}

func TestConcurrentRequestsDemultiplex(t *testing.T) {
	srv := serveReady(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Connect(ctx, wsURL(srv.URL), "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	const n = 20
	errc := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			reply, err := conn.Req(ctx, "ue_get", Msg{"i": i})
			if err != nil {
				errc <- err
				return
			}
			if got := int(reply["i"].(float64)); got != i {
				errc <- errUnexpected(i, got)
				return
			}
			errc <- nil
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errc; err != nil {
			t.Error(err)
		}
	}
}

func errUnexpected(want, got int) error {
	b, _ := json.Marshal(struct{ Want, Got int }{want, got})
	return &jsonErr{string(b)}
}

type jsonErr struct{ s string }

func (e *jsonErr) Error() string { return e.s }

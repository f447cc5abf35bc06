package drbsrv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveDRB runs a minimal base station stand-in: it answers "ue_get" with
// one UE carrying a steadily growing QCI-9 ERAB counter and one cell, and
// answers "stats" with a fixed cell utilization. Every connection gets its
// own upgraded socket and its own counter, mirroring how the sampler
// expects one octet stream per poller.
func serveDRB(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]any{
			"message": "ready", "type": "amarisoft", "name": "test-enb", "version": "2023-01-01",
		}); err != nil {
			return
		}

		var mu sync.Mutex
		var totalBytes int64
		var t0 = time.Now()

		for {
			var rx map[string]any
			if err := conn.ReadJSON(&rx); err != nil {
				return
			}
			msg, _ := rx["message"].(string)
			mid := rx["message_id"]

			now := time.Since(t0).Seconds()
			switch msg {
			case "ue_get":
				mu.Lock()
				totalBytes += 2000
				tb := totalBytes
				mu.Unlock()
				conn.WriteJSON(map[string]any{
					"message": "ue_get", "message_id": mid, "time": now, "utc": now,
					"ue_list": []any{
						map[string]any{
							"enb_ue_id": 1,
							"cells": []any{
								map[string]any{
									"cell_id": 1, "dl_tx": 20, "dl_retx": 0, "dl_bitrate": 2e6,
									"ul_tx": 5, "ul_retx": 0, "ul_bitrate": 5e5, "ri": 1,
								},
							},
							"erab_list": []any{
								map[string]any{"erab_id": 5, "qci": 9, "dl_total_bytes": tb, "ul_total_bytes": tb / 4},
							},
						},
					},
				})
			case "stats":
				conn.WriteJSON(map[string]any{
					"message": "stats", "message_id": mid, "utc": now,
					"cells": map[string]any{
						"1": map[string]any{"dl_use_avg": 0.4, "ul_use_avg": 0.1},
					},
				})
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestServerAccumulatesAndReplies(t *testing.T) {
	srv := serveDRB(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, wsURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// let the 100 Hz pollers run for a while so bursts accumulate and
	// finalize (a burst only turns into a Sample once activity stops or
	// a UE is seen again with no further growth).
	time.Sleep(300 * time.Millisecond)

	reply, err := s.Req(ctx, nil)
	if err != nil {
		t.Fatalf("Req: %v", err)
	}
	if reply.String() != "x.drb_stats" {
		t.Errorf("reply message = %q, want x.drb_stats", reply.String())
	}
	if _, ok := reply["qci_dict"]; !ok {
		t.Errorf("reply missing qci_dict: %v", reply)
	}
}

func TestServerRejectsAfterClose(t *testing.T) {
	srv := serveDRB(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := New(ctx, wsURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Close()

	if _, err := s.Req(ctx, nil); err == nil {
		t.Fatal("Req after Close: expected error, got nil")
	}
}

package shipper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBufferAddAndDrain(t *testing.T) {
	var buf Buffer
	buf.Add(Record{Level: "info", Message: "one"})
	buf.Add(Record{Level: "warn", Message: "two"})

	records := buf.drain()
	if len(records) != 2 {
		t.Fatalf("drain() returned %d records, want 2", len(records))
	}
	if empty := buf.drain(); len(empty) != 0 {
		t.Fatalf("second drain() returned %d records, want 0", len(empty))
	}
}

func TestFlushSkipsEmptyBuffer(t *testing.T) {
	var hit atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Store(true)
	}))
	defer srv.Close()

	buf := &Buffer{}
	svc, err := NewService(srv.URL, buf, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService error = %v", err)
	}
	svc.flush()

	if hit.Load() {
		t.Fatal("expected flush of an empty buffer to make no HTTP request")
	}
}

func TestFlushPostsBatchToSink(t *testing.T) {
	received := make(chan []Record, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []Record
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		received <- batch
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	buf := &Buffer{}
	buf.Add(Record{Level: "info", Message: "hello", Time: time.Now()})

	svc, err := NewService(srv.URL, buf, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService error = %v", err)
	}
	svc.flush()

	select {
	case batch := <-received:
		if len(batch) != 1 || batch[0].Message != "hello" {
			t.Fatalf("received batch = %+v", batch)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the sink to receive the batch")
	}
}

func TestServiceInitializeAndFinalize(t *testing.T) {
	buf := &Buffer{}
	svc, err := NewService("", buf, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService error = %v", err)
	}

	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error = %v", err)
	}
	if err := svc.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize error = %v", err)
	}
}

package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/supplyscrape/scraper/internal/model"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func sample() model.Product {
	price := 4.2
	return model.Product{SKU: "S-1", Title: "Screw", Price: &price, SiteID: "acme", RunID: "run_1", Strategy: "list"}
}

func TestRouter_FanOutFirstError(t *testing.T) {
	var a, b int
	boom := errors.New("boom")
	r := NewRouter(quiet,
		NewCallback(func(context.Context, model.Product) error { a++; return boom }),
		NewCallback(func(context.Context, model.Product) error { b++; return nil }),
		NewCallback(func(context.Context, model.Product) error { return errors.New("second") }),
	)
	if err := r.Stage(context.Background(), sample()); !errors.Is(err, boom) {
		t.Errorf("Stage = %v, want first error", err)
	}
	if a != 1 || b != 1 {
		t.Errorf("delivered a=%d b=%d, want 1 each", a, b)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestCallback_Nil(t *testing.T) {
	if err := NewCallback(nil).Stage(context.Background(), sample()); err != nil {
		t.Errorf("nil callback: %v", err)
	}
}

func TestStdout_Envelope(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Stage(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Type string        `json:"type"`
		Data model.Product `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got.Type != "product" || got.Data.SKU != "S-1" || *got.Data.Price != 4.2 {
		t.Errorf("envelope = %+v", got)
	}
}

type fakeWriter struct {
	got []model.Product
	err error
}

func (f *fakeWriter) InsertStaging(_ context.Context, p *model.Product) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.got = append(f.got, *p)
	return "stg_x", nil
}

func TestStoreSink(t *testing.T) {
	w := &fakeWriter{}
	if err := NewStore(w).Stage(context.Background(), sample()); err != nil {
		t.Fatal(err)
	}
	if len(w.got) != 1 || w.got[0].SKU != "S-1" {
		t.Errorf("written = %+v", w.got)
	}
	w.err = errors.New("locked")
	if err := NewStore(w).Stage(context.Background(), sample()); err == nil {
		t.Error("store error swallowed")
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("headers = %v", r.Header)
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var env struct {
			Type string `json:"type"`
		}
		json.NewDecoder(r.Body).Decode(&env)
		if env.Type != "product" {
			t.Errorf("type = %q", env.Type)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL,
		WithWebhookBackoff(time.Millisecond),
		WithWebhookHeader("Authorization", "Bearer k"),
		WithWebhookLogger(quiet))
	if err := w.Stage(context.Background(), sample()); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet))
	if err := w.Stage(context.Background(), sample()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhook_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(2), WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet))
	if err := w.Stage(context.Background(), sample()); err == nil {
		t.Fatal("expected error after retries")
	}
}

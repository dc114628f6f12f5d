package uploader

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

func TestHTTPControlClient_SubmitChunk(t *testing.T) {
	var mu sync.Mutex
	var gotSeq, gotFinal, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recordings/client-1/chunks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("not multipart: %v", err)
		}
		file, _, err := r.FormFile("chunk")
		if err != nil {
			t.Fatalf("missing chunk part: %v", err)
		}
		data, _ := io.ReadAll(file)

		mu.Lock()
		gotSeq = r.FormValue("sequence")
		gotFinal = r.FormValue("final")
		gotBody = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPControlClient(srv.URL, srv.Client())
	err := c.SubmitChunk(context.Background(), transport.OutboundChunk{
		ClientID: "client-1",
		Sequence: 7,
		Data:     []byte("opus-bytes"),
	})
	if err != nil {
		t.Fatalf("SubmitChunk failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotSeq != "7" {
		t.Errorf("expected sequence 7, got %q", gotSeq)
	}
	if gotFinal != "false" {
		t.Errorf("expected final=false, got %q", gotFinal)
	}
	if gotBody != "opus-bytes" {
		t.Errorf("unexpected chunk body %q", gotBody)
	}
}

func TestHTTPControlClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewHTTPControlClient(srv.URL, srv.Client())
	err := c.StartRecording(context.Background(), "client-1")
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if !IsClientError(err) {
		t.Errorf("expected client error, got %v", err)
	}
}

func TestHTTPControlClient_ControlPaths(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
	}))
	defer srv.Close()

	c := NewHTTPControlClient(srv.URL, srv.Client())
	ctx := context.Background()
	_ = c.StartRecording(ctx, "c")
	_ = c.StopRecording(ctx, "c")
	_ = c.StopProcessing(ctx, "c")

	want := []string{"/recordings/c/start", "/recordings/c/stop", "/recordings/c/processing/stop"}
	mu.Lock()
	defer mu.Unlock()
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("call %d hit %s, want %s", i, paths[i], p)
		}
	}
}

package devserver

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/neokaiyuan/ask-goodnotes/internal/router"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	e := echo.New()
	srv := New(slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	srv.RegisterRoutes(e)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return ts, wsURL
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func dialWS(t *testing.T, wsURL, clientID string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/"+clientID, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func postChunk(t *testing.T, baseURL, clientID, seq string, payload []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("sequence", seq); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("final", "false"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("chunk", "chunk.pcm")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(payload); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	resp, err := http.Post(baseURL+"/recordings/"+clientID+"/chunks", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSignaling_OfferEchoedAsAnswer(t *testing.T) {
	_, wsURL := newTestServer(t)
	ws := dialWS(t, wsURL, "client-a")

	offer := transport.SignalMessage{Type: transport.SignalOffer, SDP: "v=0 fake sdp"}
	if err := ws.WriteJSON(offer); err != nil {
		t.Fatal(err)
	}

	var answer transport.SignalMessage
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&answer); err != nil {
		t.Fatal(err)
	}
	if answer.Type != transport.SignalAnswer {
		t.Fatalf("type = %q, want %q", answer.Type, transport.SignalAnswer)
	}
	if answer.SDP != offer.SDP {
		t.Fatalf("sdp = %q, want %q", answer.SDP, offer.SDP)
	}
}

func TestSignaling_ICECandidateEchoed(t *testing.T) {
	_, wsURL := newTestServer(t)
	ws := dialWS(t, wsURL, "client-b")

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 2113937151 192.0.2.1 54400 typ host"}`)
	if err := ws.WriteJSON(transport.SignalMessage{Type: transport.SignalICECandidate, Candidate: cand}); err != nil {
		t.Fatal(err)
	}

	var echoed transport.SignalMessage
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&echoed); err != nil {
		t.Fatal(err)
	}
	if echoed.Type != transport.SignalICECandidate {
		t.Fatalf("type = %q", echoed.Type)
	}
	if string(echoed.Candidate) != string(cand) {
		t.Fatalf("candidate = %s", echoed.Candidate)
	}
}

func TestChunks_AcceptedInOrder(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/recordings/client-c/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}

	for i, seq := range []string{"0", "1", "2"} {
		resp := postChunk(t, ts.URL, "client-c", seq, []byte{byte(i), 0})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("chunk %s status = %d", seq, resp.StatusCode)
		}
	}
}

func TestChunks_OutOfOrderRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := http.Post(ts.URL+"/recordings/client-d/start", "application/json", nil)
	resp.Body.Close()

	if resp := postChunk(t, ts.URL, "client-d", "2", []byte{0, 0}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChunks_WithoutStartRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp := postChunk(t, ts.URL, "client-e", "0", []byte{0, 0}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStopRecording_StreamsCannedResponse(t *testing.T) {
	ts, wsURL := newTestServer(t)
	ws := dialWS(t, wsURL, "client-f")

	resp, _ := http.Post(ts.URL+"/recordings/client-f/start", "application/json", nil)
	resp.Body.Close()
	postChunk(t, ts.URL, "client-f", "0", []byte{1, 0, 2, 0})
	resp, _ = http.Post(ts.URL+"/recordings/client-f/stop", "application/json", nil)
	resp.Body.Close()

	var texts []string
	var binaries int
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(texts) < 2 || binaries < 4 {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read (texts=%d binaries=%d): %v", len(texts), binaries, err)
		}
		if mt == websocket.BinaryMessage {
			binaries++
			if len(data)%2 != 0 {
				t.Fatalf("odd binary frame length %d", len(data))
			}
			continue
		}
		texts = append(texts, string(data))
	}

	if !strings.HasPrefix(texts[0], router.PrefixInput) {
		t.Fatalf("first text = %q, want input transcript", texts[0])
	}
	if !strings.HasPrefix(texts[1], router.PrefixOutput) {
		t.Fatalf("second text = %q, want output transcript", texts[1])
	}
}

func TestStopRecording_SecondStopRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, _ := http.Post(ts.URL+"/recordings/client-h/start", "application/json", nil)
	resp.Body.Close()
	resp, _ = http.Post(ts.URL+"/recordings/client-h/stop", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first stop status = %d", resp.StatusCode)
	}

	// a repeat stop must not spawn a second response stream
	resp, _ = http.Post(ts.URL+"/recordings/client-h/stop", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("second stop status = %d, want 400", resp.StatusCode)
	}
}

func TestStopProcessing_HaltsStream(t *testing.T) {
	ts, wsURL := newTestServer(t)
	ws := dialWS(t, wsURL, "client-g")

	resp, _ := http.Post(ts.URL+"/recordings/client-g/start", "application/json", nil)
	resp.Body.Close()
	resp, _ = http.Post(ts.URL+"/recordings/client-g/stop", "application/json", nil)
	resp.Body.Close()
	resp, _ = http.Post(ts.URL+"/recordings/client-g/processing/stop", "application/json", nil)
	resp.Body.Close()

	// drain whatever made it out before the stop; the stream must end well
	// short of the full four audio frames plus transcripts
	var binaries int
	ws.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	for {
		mt, _, err := ws.ReadMessage()
		if err != nil {
			break
		}
		if mt == websocket.BinaryMessage {
			binaries++
		}
	}
	if binaries >= 4 {
		t.Fatalf("got %d audio frames after stop-processing", binaries)
	}
}

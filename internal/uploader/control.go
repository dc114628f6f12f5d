package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

// StatusError is a non-2xx response from a control endpoint.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control %s: status %d", e.Endpoint, e.Code)
}

// IsClientError reports whether err is a 4xx control response, which marks
// the recording run invalid.
func IsClientError(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code >= 400 && statusErr.Code < 500
}

// HTTPControlClient talks to the request/response control endpoints that
// bracket the streaming path.
type HTTPControlClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPControlClient(baseURL string, client *http.Client) *HTTPControlClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPControlClient{baseURL: baseURL, client: client}
}

func (c *HTTPControlClient) StartRecording(ctx context.Context, clientID string) error {
	return c.post(ctx, "/recordings/"+clientID+"/start", "", nil)
}

func (c *HTTPControlClient) StopRecording(ctx context.Context, clientID string) error {
	return c.post(ctx, "/recordings/"+clientID+"/stop", "", nil)
}

func (c *HTTPControlClient) StopProcessing(ctx context.Context, clientID string) error {
	return c.post(ctx, "/recordings/"+clientID+"/processing/stop", "", nil)
}

func (c *HTTPControlClient) SubmitChunk(ctx context.Context, chunk transport.OutboundChunk) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("sequence", strconv.Itoa(chunk.Sequence)); err != nil {
		return err
	}
	if err := writer.WriteField("final", strconv.FormatBool(chunk.Final)); err != nil {
		return err
	}

	part, err := writer.CreateFormFile("chunk", fmt.Sprintf("chunk-%d", chunk.Sequence))
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk.Data); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return c.post(ctx, "/recordings/"+chunk.ClientID+"/chunks", writer.FormDataContentType(), &body)
}

func (c *HTTPControlClient) post(ctx context.Context, path, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Endpoint: path, Code: resp.StatusCode}
	}
	return nil
}

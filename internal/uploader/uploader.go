package uploader

import (
	"context"
	"log/slog"
	"sync"

	"github.com/neokaiyuan/ask-goodnotes/internal/shared"
	"github.com/neokaiyuan/ask-goodnotes/internal/transport"
)

// Uploader stamps outbound chunks with monotonically increasing sequence
// numbers and dispatches them in assignment order. It is only active between
// Begin and End; stray chunks outside a recording run are rejected.
type Uploader struct {
	control  transport.ControlClient
	clientID string
	log      *slog.Logger

	mu     sync.Mutex
	active bool
	seq    int
}

func New(control transport.ControlClient, clientID string, log *slog.Logger) *Uploader {
	if log == nil {
		log = slog.Default()
	}
	return &Uploader{
		control:  control,
		clientID: clientID,
		log:      log.With("component", "uploader"),
	}
}

// Begin starts a new recording run: sequence counter back to 0, uploader
// active. The start-recording control call is idempotent per client id.
func (u *Uploader) Begin(ctx context.Context) error {
	if err := u.control.StartRecording(ctx, u.clientID); err != nil {
		return err
	}

	u.mu.Lock()
	u.active = true
	u.seq = 0
	u.mu.Unlock()
	return nil
}

// Submit dispatches one captured chunk. The sequence number is assigned and
// the chunk forwarded under the same lock, so dispatch order matches
// assignment order. A client-error response invalidates the recording run;
// the uploader goes inactive and does not resume.
func (u *Uploader) Submit(ctx context.Context, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.active {
		u.log.Warn("chunk dropped, uploader inactive")
		return shared.ErrUploadRejected
	}

	chunk := transport.OutboundChunk{
		ClientID: u.clientID,
		Sequence: u.seq,
		Data:     data,
		Final:    false,
	}
	u.seq++

	if err := u.control.SubmitChunk(ctx, chunk); err != nil {
		if IsClientError(err) {
			u.log.Warn("chunk rejected, recording run invalid", "sequence", chunk.Sequence, "error", err)
			u.active = false
			return shared.ErrUploadRejected
		}
		return err
	}
	return nil
}

// End marks the uploader inactive and signals the backend that the run is
// complete.
func (u *Uploader) End(ctx context.Context) error {
	u.mu.Lock()
	u.active = false
	u.mu.Unlock()

	return u.control.StopRecording(ctx, u.clientID)
}

func (u *Uploader) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

package session

import "sync"

// TranscriptStore holds the live transcript pair. Every update replaces the
// whole value; messages on the wire carry complete text, not deltas.
type TranscriptStore struct {
	mu       sync.Mutex
	input    string
	output   string
	onUpdate func(input, output string)
}

func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{}
}

func (t *TranscriptStore) OnUpdate(fn func(input, output string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = fn
}

func (t *TranscriptStore) SetInput(text string) {
	t.mu.Lock()
	t.input = text
	fn := t.onUpdate
	input, output := t.input, t.output
	t.mu.Unlock()
	if fn != nil {
		fn(input, output)
	}
}

func (t *TranscriptStore) SetOutput(text string) {
	t.mu.Lock()
	t.output = text
	fn := t.onUpdate
	input, output := t.input, t.output
	t.mu.Unlock()
	if fn != nil {
		fn(input, output)
	}
}

func (t *TranscriptStore) Input() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input
}

func (t *TranscriptStore) Output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.output
}

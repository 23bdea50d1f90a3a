package realtime_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/domain"
)

// recordingSink captures delivered frames. A full sink refuses delivery.
type recordingSink struct {
	mu     sync.Mutex
	frames []domain.Frame
	full   bool
}

func (s *recordingSink) Deliver(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.full {
		return false
	}
	var f domain.Frame
	if err := json.Unmarshal(frame, &f); err != nil {
		panic(err)
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Type)
	}
	return out
}

func (s *recordingSink) last(t *testing.T) domain.Frame {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.frames, "no frames delivered")
	return s.frames[len(s.frames)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

func mustFrame(t *testing.T, event string, payload any) domain.Frame {
	t.Helper()

	data, err := domain.EncodeFrame(event, payload)
	require.NoError(t, err)
	f, err := domain.DecodeFrame(data)
	require.NoError(t, err)
	return f
}

func decodeAs[T any](t *testing.T, f domain.Frame) T {
	t.Helper()

	v, err := domain.DecodePayload[T](f.Payload)
	require.NoError(t, err)
	return v
}

func strPtr(s string) *string { return &s }

package browser

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dopagent/internal/config"
)

type stubResolver struct{}

func (stubResolver) Solve(context.Context, []byte) (string, error) { return "ABCDE", nil }

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.Default()
	return NewSession(cfg.Browser, cfg.Portal, stubResolver{}, t.TempDir(), slog.Default())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "authenticating", StateAuthenticating.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestNewSessionStartsClosed(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	s := NewSession(cfg.Browser, cfg.Portal, stubResolver{}, dir, slog.Default())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, dir, s.DownloadDir())
}

func TestLoginRequiresOpenSession(t *testing.T) {
	s := newTestSession(t)
	err := s.Login(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestCloseWithoutOpenIsSafe(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestOpenRejectsReopenedSession(t *testing.T) {
	s := newTestSession(t)
	s.state.Store(int32(StateReady))
	err := s.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ready")
}

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceradar/internal/config"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

func testManager(launch launchFunc) *Manager {
	m := NewManager(&config.Config{})
	m.launch = launch
	return m
}

func fakeSession() *Session {
	return &Session{createdAt: time.Now()}
}

func TestManagerAcquireRelease(t *testing.T) {
	sess := fakeSession()
	m := testManager(func(ctx context.Context, loc models.Location, headless bool) (*Session, error) {
		return sess, nil
	})

	got, err := m.Acquire(context.Background(), models.DefaultLocation, true)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	m.Release(got)

	// A new session can be acquired after release.
	_, err = m.Acquire(context.Background(), models.DefaultLocation, true)
	assert.NoError(t, err)
}

func TestManagerRejectsSecondAcquire(t *testing.T) {
	m := testManager(func(ctx context.Context, loc models.Location, headless bool) (*Session, error) {
		return fakeSession(), nil
	})

	_, err := m.Acquire(context.Background(), models.DefaultLocation, true)
	require.NoError(t, err)

	_, err = m.Acquire(context.Background(), models.DefaultLocation, true)
	require.Error(t, err)

	var se *utils.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, utils.SessionAlreadyOpen, se.Kind)
}

func TestManagerLaunchFailure(t *testing.T) {
	m := testManager(func(ctx context.Context, loc models.Location, headless bool) (*Session, error) {
		return nil, errors.New("no chrome binary")
	})

	_, err := m.Acquire(context.Background(), models.DefaultLocation, true)
	require.Error(t, err)

	var se *utils.SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, utils.SessionInitFailed, se.Kind)

	// A failed launch does not leave a phantom active session.
	_, err = m.Acquire(context.Background(), models.DefaultLocation, true)
	assert.Error(t, err)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, utils.SessionInitFailed, se.Kind)
}

func TestManagerReleaseIsIdempotent(t *testing.T) {
	m := testManager(func(ctx context.Context, loc models.Location, headless bool) (*Session, error) {
		return fakeSession(), nil
	})

	sess, err := m.Acquire(context.Background(), models.DefaultLocation, true)
	require.NoError(t, err)

	m.Release(sess)
	m.Release(sess)
	m.Release(nil)
}

func TestResolveChromePath(t *testing.T) {
	t.Run("configured path wins when it exists", func(t *testing.T) {
		bin := filepath.Join(t.TempDir(), "chrome")
		require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

		assert.Equal(t, bin, resolveChromePath(bin))
	})

	t.Run("missing configured path falls back to discovery", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "does-not-exist")
		assert.NotEqual(t, missing, resolveChromePath(missing))
	})
}

func TestLocalePrimary(t *testing.T) {
	tests := []struct {
		locale string
		want   string
	}{
		{"zh-CN", "zh"},
		{"en-US", "en"},
		{"zh", "zh"},
		{"a", "a"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, localePrimary(tt.locale), tt.locale)
	}
}

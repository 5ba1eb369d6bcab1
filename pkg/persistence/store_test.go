package persistence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances one second per call.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T, kv KV) *Store {
	t.Helper()
	if kv == nil {
		kv = NewMemoryKV()
	}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewStore(Config{KV: kv, Now: clock.Now})
}

func ptr[T any](v T) *T { return &v }

func ids(history []HistoryEntry) []string {
	out := make([]string, len(history))
	for i, h := range history {
		out[i] = h.ID
	}
	return out
}

func TestAddToHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("new entries go to the front", func(t *testing.T) {
		s := newTestStore(t, nil)

		first, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "Studio", nil)
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.5:5505", first.ID)
		assert.Equal(t, 1, first.SuccessCount)

		_, err = s.AddToHistory(ctx, "192.168.1.6", 5505, "", nil)
		require.NoError(t, err)

		assert.Equal(t, []string{"192.168.1.6:5505", "192.168.1.5:5505"}, ids(s.History(ctx)))
	})

	t.Run("re-adding increments the count by one", func(t *testing.T) {
		s := newTestStore(t, nil)

		_, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "Studio", map[string]int{"remote": 50001})
		require.NoError(t, err)
		_, err = s.AddToHistory(ctx, "192.168.1.6", 5505, "", nil)
		require.NoError(t, err)
		before := s.History(ctx)[1]

		again, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "", map[string]int{"stage": 50002})
		require.NoError(t, err)

		assert.Equal(t, before.SuccessCount+1, again.SuccessCount)
		assert.Equal(t, "Studio", again.Name)
		assert.True(t, again.LastUsedAt.After(before.LastUsedAt))
		assert.Equal(t, map[string]int{"remote": 50001, "stage": 50002}, again.CapabilityPorts)

		history := s.History(ctx)
		assert.Equal(t, []string{"192.168.1.5:5505", "192.168.1.6:5505"}, ids(history))
	})

	t.Run("non-empty name replaces the old one", func(t *testing.T) {
		s := newTestStore(t, nil)

		_, _ = s.AddToHistory(ctx, "192.168.1.5", 5505, "Studio", nil)
		e, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "Main Hall", nil)
		require.NoError(t, err)
		assert.Equal(t, "Main Hall", e.Name)
	})

	t.Run("bounded to ten most recently used", func(t *testing.T) {
		s := newTestStore(t, nil)

		for i := 1; i <= 11; i++ {
			_, err := s.AddToHistory(ctx, fmt.Sprintf("10.0.0.%d", i), 5505, "", nil)
			require.NoError(t, err)
		}

		history := s.History(ctx)
		require.Len(t, history, 10)
		assert.Equal(t, "10.0.0.11:5505", history[0].ID)
		assert.Equal(t, "10.0.0.2:5505", history[9].ID)
		assert.NotContains(t, ids(history), "10.0.0.1:5505")
	})

	t.Run("ids stay unique", func(t *testing.T) {
		s := newTestStore(t, nil)
		for i := 0; i < 5; i++ {
			_, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "", nil)
			require.NoError(t, err)
		}
		history := s.History(ctx)
		require.Len(t, history, 1)
		assert.Equal(t, 5, history[0].SuccessCount)
	})

	t.Run("invalid endpoint", func(t *testing.T) {
		s := newTestStore(t, nil)
		_, err := s.AddToHistory(ctx, "", 5505, "", nil)
		assert.ErrorIs(t, err, ErrInvalidEntry)
		_, err = s.AddToHistory(ctx, "h", 0, "", nil)
		assert.ErrorIs(t, err, ErrInvalidEntry)
		assert.Empty(t, s.History(ctx))
	})
}

func TestRemoveAndClearHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	_, _ = s.AddToHistory(ctx, "192.168.1.5", 5505, "", nil)
	_, _ = s.AddToHistory(ctx, "192.168.1.6", 5505, "", nil)

	removed, err := s.RemoveFromHistory(ctx, "192.168.1.5:5505")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"192.168.1.6:5505"}, ids(s.History(ctx)))

	removed, err = s.RemoveFromHistory(ctx, "192.168.1.5:5505")
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, s.ClearHistory(ctx))
	assert.Empty(t, s.History(ctx))
}

func TestSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults on empty storage", func(t *testing.T) {
		s := newTestStore(t, nil)
		assert.Equal(t, DefaultSettings(), s.Settings(ctx))
		assert.Equal(t, Settings{
			Theme:                    "dark",
			NotificationsEnabled:     true,
			AutoReconnectEnabled:     true,
			ConnectionTimeoutSeconds: 10,
		}, s.Settings(ctx))
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		s := newTestStore(t, nil)

		got, err := s.UpdateSettings(ctx, SettingsPatch{AutoReconnectEnabled: ptr(false)})
		require.NoError(t, err)
		assert.False(t, got.AutoReconnectEnabled)
		assert.Equal(t, "dark", got.Theme)

		got, err = s.UpdateSettings(ctx, SettingsPatch{Theme: ptr("light")})
		require.NoError(t, err)
		assert.False(t, got.AutoReconnectEnabled)
		assert.Equal(t, "light", got.Theme)
		assert.Equal(t, got, s.Settings(ctx))
	})

	t.Run("validation", func(t *testing.T) {
		s := newTestStore(t, nil)

		got, err := s.UpdateSettings(ctx, SettingsPatch{ConnectionTimeoutSeconds: ptr(500), Theme: ptr("neon")})
		require.NoError(t, err)
		assert.Equal(t, MaxConnectionTimeoutSeconds, got.ConnectionTimeoutSeconds)
		assert.Equal(t, "dark", got.Theme)

		got, err = s.UpdateSettings(ctx, SettingsPatch{ConnectionTimeoutSeconds: ptr(0)})
		require.NoError(t, err)
		assert.Equal(t, MinConnectionTimeoutSeconds, got.ConnectionTimeoutSeconds)
		assert.Equal(t, time.Second, got.ConnectionTimeout())
	})

	t.Run("partial stored object merges with defaults", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(ctx, KeySettings, []byte(`{"notifications_enabled":false}`)))
		s := newTestStore(t, kv)

		got := s.Settings(ctx)
		assert.False(t, got.NotificationsEnabled)
		assert.True(t, got.AutoReconnectEnabled)
		assert.Equal(t, 10, got.ConnectionTimeoutSeconds)
	})
}

// failingKV fails every operation.
type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Set(context.Context, string, []byte) error   { return f.err }
func (f failingKV) Delete(context.Context, string) error        { return f.err }
func (f failingKV) Close() error                                { return nil }

func TestReadsDegrade(t *testing.T) {
	ctx := context.Background()

	t.Run("storage errors", func(t *testing.T) {
		s := newTestStore(t, failingKV{err: errors.New("disk gone")})

		state := s.Load(ctx)
		assert.Empty(t, state.History)
		assert.NotNil(t, state.History)
		assert.Equal(t, DefaultSettings(), state.Settings)

		_, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "", nil)
		assert.ErrorContains(t, err, "disk gone")
		_, err = s.UpdateSettings(ctx, SettingsPatch{Theme: ptr("light")})
		assert.ErrorContains(t, err, "disk gone")
	})

	t.Run("corrupt documents", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(ctx, KeyHistory, []byte(`{not json`)))
		require.NoError(t, kv.Set(ctx, KeySettings, []byte(`[]`)))
		s := newTestStore(t, kv)

		assert.Empty(t, s.History(ctx))
		assert.Equal(t, DefaultSettings(), s.Settings(ctx))

		// A write replaces the corrupt document.
		_, err := s.AddToHistory(ctx, "192.168.1.5", 5505, "", nil)
		require.NoError(t, err)
		assert.Len(t, s.History(ctx), 1)
	})

	t.Run("malformed entries are dropped", func(t *testing.T) {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set(ctx, KeyHistory, []byte(`[
			{"host":"192.168.1.5","port":5505},
			{"host":"","port":5505},
			{"host":"192.168.1.5","port":5505},
			{"host":"192.168.1.6","port":99999}
		]`)))
		s := newTestStore(t, kv)

		assert.Equal(t, []string{"192.168.1.5:5505"}, ids(s.History(ctx)))
	})
}

func TestLoadPersistsAcrossStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			kv, err := OpenKV(backend, filepath.Join(dir, backend))
			require.NoError(t, err)
			s := newTestStore(t, kv)
			_, err = s.AddToHistory(ctx, "192.168.1.5", 5505, "Studio", nil)
			require.NoError(t, err)
			_, err = s.UpdateSettings(ctx, SettingsPatch{AutoReconnectEnabled: ptr(false)})
			require.NoError(t, err)
			require.NoError(t, s.Close())

			kv, err = OpenKV(backend, filepath.Join(dir, backend))
			require.NoError(t, err)
			s = newTestStore(t, kv)
			defer s.Close()

			state := s.Load(ctx)
			require.Len(t, state.History, 1)
			assert.Equal(t, "Studio", state.History[0].Name)
			assert.False(t, state.Settings.AutoReconnectEnabled)
		})
	}
}

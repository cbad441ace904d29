package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbox-app/invoice-ocr/internal/common"
)

func waitForEvent(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "event channel closed unexpectedly")
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher event")
		return ""
	}
}

// assertQuiet fails if anything arrives on the channel within the window.
func assertQuiet(t *testing.T, ch <-chan string, window time.Duration) {
	t.Helper()
	select {
	case p, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %s", p)
		}
	case <-time.After(window):
	}
}

func TestWatcherRequiresRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestWatcherFiltersNonImageFiles(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:    []string{root},
		Debounce: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("n"), 0o644))
	invoice := filepath.Join(root, "invoice.jpg")
	require.NoError(t, os.WriteFile(invoice, []byte("i"), 0o644))

	assert.Equal(t, invoice, waitForEvent(t, events))
	assertQuiet(t, events, 200*time.Millisecond)
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:    []string{root},
		Debounce: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	path := filepath.Join(root, "invoice.png")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, path, waitForEvent(t, events))
	assertQuiet(t, events, 300*time.Millisecond)
}

func TestWatcherInitialScanAndRecursiveWatch(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "inbox")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	existing := filepath.Join(root, "old.png")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    50 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, existing, waitForEvent(t, events))

	// sub existed at startup, so it is on the recursive watch list.
	nested := filepath.Join(sub, "new.png")
	require.NoError(t, os.WriteFile(nested, []byte("y"), 0o644))
	assert.Equal(t, nested, waitForEvent(t, events))
}

func TestWatcherClosesChannelsOnCancel(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:    []string{root},
		Debounce: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	cancel()

	deadline := time.After(2 * time.Second)
	for events != nil || errs != nil {
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-deadline:
			t.Fatal("channels not closed after cancel")
		}
	}
}

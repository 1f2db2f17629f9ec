package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	if cfg.NavigationTimeout != DefaultNavigationTimeout {
		t.Fatalf("expected default nav timeout, got %v", cfg.NavigationTimeout)
	}
	if cfg.IdleTimeout != DefaultIdleTimeout || cfg.SelectorTimeout != DefaultSelectorTimeout {
		t.Fatalf("expected default idle/selector timeouts, got %+v", cfg)
	}
	cfg = Config{NavigationTimeout: time.Second}.withDefaults()
	if cfg.NavigationTimeout != time.Second {
		t.Fatalf("expected override to be used, got %v", cfg.NavigationTimeout)
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://example.com/app.js"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 203, URL: "https://example.com/rendered"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://example.com/iframe"},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 203 || url != "https://example.com/rendered" {
		t.Fatalf("unexpected snapshot values: status=%d url=%s", status, url)
	}

	meta.reset()
	status, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
	_, url = meta.snapshotWithFallbacks("https://req", "about:blank")
	if url != "https://req" {
		t.Fatalf("expected request url fallback, got %s", url)
	}
}

func TestHandleEventSignalsNetworkIdle(t *testing.T) {
	t.Parallel()

	r := &Renderer{meta: newResponseMeta(), idle: make(chan struct{}, 1)}
	r.handleEvent(&page.EventLifecycleEvent{Name: "load"})
	select {
	case <-r.idle:
		t.Fatal("load event must not signal idle")
	default:
	}

	r.handleEvent(&page.EventLifecycleEvent{Name: "networkIdle"})
	r.handleEvent(&page.EventLifecycleEvent{Name: "networkIdle"})
	select {
	case <-r.idle:
	default:
		t.Fatal("expected idle signal")
	}
	drain(r.idle)
	if len(r.idle) != 0 {
		t.Fatal("expected drained channel")
	}
}

func TestWaitIdleProceedsOnTimeout(t *testing.T) {
	t.Parallel()

	idle := make(chan struct{}, 1)
	start := time.Now()
	if err := waitIdle(idle, 20*time.Millisecond, zap.NewNop()).Do(context.Background()); err != nil {
		t.Fatalf("expected idle timeout to be tolerated, got %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("expected wait to last for the idle budget")
	}

	idle <- struct{}{}
	if err := waitIdle(idle, time.Minute, zap.NewNop()).Do(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitIdle(make(chan struct{}), time.Minute, zap.NewNop()).Do(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()
	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("expected parent cancellation to propagate")
	}
}

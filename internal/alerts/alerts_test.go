package alerts_test

import (
	"context"
	"testing"
	"time"

	"datanode/internal/alerts"
)

func TestPublisherWithNoSinksIsNoop(t *testing.T) {
	p := alerts.New(context.Background(), alerts.Config{}, nil)
	defer p.Close()

	p.Publish(alerts.Alert{Kind: "disk-near-full", Message: "location store0 above high watermark"})
	// No sinks configured: nothing to assert beyond "doesn't panic or block".
}

func TestPublishDoesNotBlockWhenBufferFull(t *testing.T) {
	p := alerts.New(context.Background(), alerts.Config{}, nil)
	defer p.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5000; i++ {
			p.Publish(alerts.Alert{Kind: "overdraft"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := alerts.New(context.Background(), alerts.Config{}, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

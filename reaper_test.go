package reactor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type notifyCall struct {
	key     uint64
	payload []byte
}

type recordingNotifier struct {
	ch chan notifyCall
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan notifyCall, 4)}
}

func (n *recordingNotifier) Notify(key uint64, original Message[string], payload []byte) error {
	n.ch <- notifyCall{key: key, payload: payload}
	return nil
}

// delayedResult only resolves once ready is closed, so the reaper must
// time out its first bounded poll and re-queue the job before it ever
// sees a result.
type delayedResult struct {
	ready   chan struct{}
	payload []byte
}

func (d *delayedResult) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-d.ready:
		return d.payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// S5: a slow async result must survive one or more bounded-poll
// timeouts via re-queuing and still be delivered once it resolves.
func TestAsyncJobReaperRequeuesOnTimeout(t *testing.T) {
	notifier := newRecordingNotifier()
	logger := &recordingLogger{}
	reaper := NewAsyncJobReaper[string](notifier, logger, 10*time.Millisecond)
	reaper.Start()
	defer reaper.Stop()

	result := &delayedResult{ready: make(chan struct{}), payload: []byte("done")}
	reaper.Submit(7, Message[string]{Value: "x"}, result)

	// Let at least one poll cycle time out and re-queue before the
	// result becomes available.
	time.Sleep(35 * time.Millisecond)
	close(result.ready)

	select {
	case call := <-notifier.ch:
		if call.key != 7 {
			t.Fatalf("delivered to key %d; want 7", call.key)
		}
		if string(call.payload) != "done" {
			t.Fatalf("payload = %q; want %q", call.payload, "done")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reaper to deliver the async result")
	}
}

type immediateResult struct {
	payload []byte
	err     error
}

func (r immediateResult) Wait(ctx context.Context) ([]byte, error) { return r.payload, r.err }

func TestAsyncJobReaperImmediateResult(t *testing.T) {
	notifier := newRecordingNotifier()
	logger := &recordingLogger{}
	reaper := NewAsyncJobReaper[string](notifier, logger, 50*time.Millisecond)
	reaper.Start()
	defer reaper.Stop()

	reaper.Submit(3, Message[string]{Value: "x"}, immediateResult{payload: []byte("ok")})

	select {
	case call := <-notifier.ch:
		if call.key != 3 || string(call.payload) != "ok" {
			t.Fatalf("got %+v; want key 3 payload \"ok\"", call)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for immediate async delivery")
	}
}

func TestAsyncJobReaperDropsOnHandlerFailure(t *testing.T) {
	notifier := newRecordingNotifier()
	logger := &recordingLogger{}
	reaper := NewAsyncJobReaper[string](notifier, logger, 20*time.Millisecond)
	reaper.Start()
	defer reaper.Stop()

	reaper.Submit(5, Message[string]{Value: "x"}, immediateResult{err: errors.New("downstream exploded")})

	select {
	case call := <-notifier.ch:
		t.Fatalf("a failed job must not be delivered, got %+v", call)
	case <-time.After(100 * time.Millisecond):
	}
	if logger.count() == 0 {
		t.Fatal("expected the handler failure to be logged")
	}
	if last := logger.last(); !strings.Contains(last, "async handler failed") {
		t.Fatalf("log line = %q; want it to report the async failure", last)
	}
}

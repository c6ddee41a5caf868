package qbsync

import (
	"context"
	"sync"
	"time"
)

const (
	ProgressStepConnecting = "connecting"
	ProgressStepSyncing    = "syncing"
	ProgressStepApplying   = "applying"
	ProgressStepVerifying  = "verifying"
	ProgressStepComplete   = "complete"
	ProgressStepError      = "error"
)

type ProgressEvent struct {
	Step    string    `json:"step"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"at"`
}

func (e ProgressEvent) Terminal() bool {
	return e.Step == ProgressStepComplete || e.Step == ProgressStepError
}

type jobStream struct {
	mu        sync.Mutex
	events    []ProgressEvent
	delivered int
	done      bool
	notify    chan struct{}
}

// ProgressHub buffers per-job progress events in memory so an observer can
// attach at any point during a run and still see every event from the start.
// Publishing never blocks on observers; a job with nobody watching just
// accumulates its buffer until retention expires.
type ProgressHub struct {
	mu        sync.Mutex
	jobs      map[string]*jobStream
	retention time.Duration
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		jobs:      make(map[string]*jobStream),
		retention: 10 * time.Minute,
	}
}

func (h *ProgressHub) stream(jobID string) *jobStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	js, ok := h.jobs[jobID]
	if !ok {
		js = &jobStream{notify: make(chan struct{})}
		h.jobs[jobID] = js
	}
	return js
}

// Publish appends one event. A terminal event closes the stream and
// schedules its cleanup after the retention window.
func (h *ProgressHub) Publish(jobID string, event ProgressEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	js := h.stream(jobID)
	js.mu.Lock()
	if js.done {
		js.mu.Unlock()
		return
	}
	js.events = append(js.events, event)
	if event.Terminal() {
		js.done = true
	}
	close(js.notify)
	js.notify = make(chan struct{})
	js.mu.Unlock()

	if event.Terminal() {
		time.AfterFunc(h.retention, func() {
			h.mu.Lock()
			delete(h.jobs, jobID)
			h.mu.Unlock()
		})
	}
}

// Next returns the events at index offset and later, blocking until at least
// one new event exists, the stream ends, or ctx is done. The bool reports
// whether the stream has terminated; callers stop once it is true and all
// buffered events have been consumed.
func (h *ProgressHub) Next(ctx context.Context, jobID string, offset int) ([]ProgressEvent, bool, error) {
	js := h.stream(jobID)
	for {
		js.mu.Lock()
		if offset < len(js.events) {
			events := make([]ProgressEvent, len(js.events)-offset)
			copy(events, js.events[offset:])
			done := js.done
			js.mu.Unlock()
			return events, done, nil
		}
		if js.done {
			js.mu.Unlock()
			return nil, true, nil
		}
		notify := js.notify
		js.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// NextUndelivered returns the events no consumer has received yet, advancing
// the job's delivered cursor, so a reconnecting consumer resumes where the
// previous connection stopped instead of replaying the whole history. Blocks
// like Next. Callers that want an explicit replay position use Next instead.
func (h *ProgressHub) NextUndelivered(ctx context.Context, jobID string) ([]ProgressEvent, bool, error) {
	js := h.stream(jobID)
	for {
		js.mu.Lock()
		if js.delivered < len(js.events) {
			events := make([]ProgressEvent, len(js.events)-js.delivered)
			copy(events, js.events[js.delivered:])
			js.delivered = len(js.events)
			done := js.done
			js.mu.Unlock()
			return events, done, nil
		}
		if js.done {
			js.mu.Unlock()
			return nil, true, nil
		}
		notify := js.notify
		js.mu.Unlock()

		select {
		case <-notify:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}

// Snapshot returns the buffered events without blocking.
func (h *ProgressHub) Snapshot(jobID string) ([]ProgressEvent, bool) {
	js := h.stream(jobID)
	js.mu.Lock()
	defer js.mu.Unlock()
	events := make([]ProgressEvent, len(js.events))
	copy(events, js.events)
	return events, js.done
}

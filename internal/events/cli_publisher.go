package events

import (
	"fmt"
	"io"
	"sync"
)

// CLIPublisher writes a human-readable line per lifecycle event to an
// io.Writer (typically stdout) and fans the event out to an inner
// Publisher for WebSocket/dashboard consumers. EventTaskQueued and
// EventSpecGenerating are fanned out but produce no line.
type CLIPublisher struct {
	inner Publisher
	out   io.Writer
	mu    sync.Mutex
}

// CLIPublisherOption configures a CLIPublisher.
type CLIPublisherOption func(*CLIPublisher)

// WithInnerPublisher sets an inner publisher to fan out events to.
func WithInnerPublisher(p Publisher) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.inner = p
	}
}

// NewCLIPublisher creates a publisher that writes a line per event to out.
func NewCLIPublisher(out io.Writer, opts ...CLIPublisherOption) *CLIPublisher {
	p := &CLIPublisher{out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes a one-line rendering of event and fans it out.
func (p *CLIPublisher) Publish(event Event) {
	if p.inner != nil {
		p.inner.Publish(event)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Type {
	case EventTaskRunning:
		fmt.Fprintf(p.out, "[%s] task %s running\n", event.Time.Format("15:04:05"), event.TaskID)
	case EventTaskReview:
		fmt.Fprintf(p.out, "[%s] task %s -> review\n", event.Time.Format("15:04:05"), event.TaskID)
	case EventTaskRetry:
		fmt.Fprintf(p.out, "[%s] task %s -> queue (retry)\n", event.Time.Format("15:04:05"), event.TaskID)
	case EventTaskFailed:
		fmt.Fprintf(p.out, "[%s] task %s failed\n", event.Time.Format("15:04:05"), event.TaskID)
	case EventSpecReady:
		fmt.Fprintf(p.out, "[%s] spec ready for %s\n", event.Time.Format("15:04:05"), event.TaskID)
	case EventSpecError:
		fmt.Fprintf(p.out, "[%s] spec error for %s\n", event.Time.Format("15:04:05"), event.TaskID)
	case EventPollError:
		fmt.Fprintf(p.out, "[%s] poll error: %v\n", event.Time.Format("15:04:05"), event.Data)
	case EventPollSkipped:
		fmt.Fprintf(p.out, "[%s] poll skipped, below RAM floor\n", event.Time.Format("15:04:05"))
	case EventRegistryReloaded:
		fmt.Fprintf(p.out, "[%s] agent registry reloaded\n", event.Time.Format("15:04:05"))
	case EventColumnBootstrap:
		fmt.Fprintf(p.out, "[%s] workflow columns bootstrapped\n", event.Time.Format("15:04:05"))
	}
}

// Subscribe delegates to the inner publisher, or returns a closed channel.
func (p *CLIPublisher) Subscribe(taskID string) <-chan Event {
	if p.inner != nil {
		return p.inner.Subscribe(taskID)
	}
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe delegates to the inner publisher.
func (p *CLIPublisher) Unsubscribe(taskID string, ch <-chan Event) {
	if p.inner != nil {
		p.inner.Unsubscribe(taskID, ch)
	}
}

// Close delegates to the inner publisher.
func (p *CLIPublisher) Close() {
	if p.inner != nil {
		p.inner.Close()
	}
}

// snapshotter is implemented by *Bus; CLIPublisher delegates Recent/Counts
// to it when its inner publisher supports it, so health surfaces built
// against CLIPublisher still get event history.
type snapshotter interface {
	Recent() []Event
	Counts() map[EventType]int
}

// Recent delegates to the inner publisher's history if it supports one.
func (p *CLIPublisher) Recent() []Event {
	if s, ok := p.inner.(snapshotter); ok {
		return s.Recent()
	}
	return nil
}

// Counts delegates to the inner publisher's per-type tally if it supports one.
func (p *CLIPublisher) Counts() map[EventType]int {
	if s, ok := p.inner.(snapshotter); ok {
		return s.Counts()
	}
	return nil
}

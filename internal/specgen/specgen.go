// Package specgen implements the Spec Generator Loop (component F): a
// single-threaded cooperative poller that fires off fire-and-forget
// Context -> LLM -> Extractor pipelines for backlog projects flagged
// specStatus=generating.
package specgen

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/contextpipeline"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/extractor"
	"github.com/agentboard/agentboard/internal/llmchain"
	"github.com/agentboard/agentboard/internal/store"
)

const (
	tickInterval = 10 * time.Second
	staleAfter   = 5 * time.Minute
)

// Loop is the Spec Generator Loop.
type Loop struct {
	backend    store.Backend
	github     contextpipeline.GitHubClient
	tickets    contextpipeline.TicketResolver
	httpClient *http.Client
	chain      *llmchain.Chain
	publisher  events.Publisher
	logger     *slog.Logger
	debugSink  func(raw string)
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Config configures a Loop.
type Config struct {
	Backend    store.Backend
	GitHub     contextpipeline.GitHubClient
	Tickets    contextpipeline.TicketResolver
	HTTPClient *http.Client
	Chain      *llmchain.Chain
	Publisher  events.Publisher
	Logger     *slog.Logger
	DebugSink  func(raw string)
}

// New constructs a Loop from cfg, applying defaults for zero fields.
func New(cfg Config) *Loop {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNopPublisher()
	}
	return &Loop{
		backend:    cfg.Backend,
		github:     cfg.GitHub,
		tickets:    cfg.Tickets,
		httpClient: cfg.HTTPClient,
		chain:      cfg.Chain,
		publisher:  cfg.Publisher,
		logger:     cfg.Logger,
		debugSink:  cfg.DebugSink,
		now:        time.Now,
		inFlight:   make(map[string]time.Time),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the loop to exit and waits for it. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick garbage-collects stale in-flight entries, then fires off generation
// for every eligible backlog project not already in flight. It never
// awaits generation itself.
func (l *Loop) tick(ctx context.Context) {
	l.gcStale()

	projects, err := l.backend.ListBacklog(ctx)
	if err != nil {
		l.logger.Warn("spec generator: list backlog failed", "error", err)
		return
	}

	for _, p := range projects {
		if p.SpecStatus != boardmodel.SpecStatusGenerating {
			continue
		}
		if l.markInFlight(p.ID) {
			go l.generate(ctx, p)
		}
	}
}

func (l *Loop) gcStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, started := range l.inFlight {
		if now.Sub(started) > staleAfter {
			delete(l.inFlight, id)
		}
	}
}

// markInFlight claims id for generation, returning false if already claimed.
func (l *Loop) markInFlight(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.inFlight[id]; ok {
		return false
	}
	l.inFlight[id] = l.now()
	return true
}

func (l *Loop) releaseInFlight(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, id)
}

func (l *Loop) generate(ctx context.Context, project boardmodel.BacklogProject) {
	defer l.releaseInFlight(project.ID)

	l.publisher.Publish(events.NewEvent(events.EventSpecGenerating, project.ID, events.SpecStatusData{ProjectID: project.ID}))

	prompt := contextpipeline.Run(ctx, l.github, l.httpClient, l.tickets, project)

	completion, err := l.chain.Complete(ctx, prompt)
	if err != nil {
		l.fail(ctx, project.ID, err.Error())
		return
	}

	extracted, err := extractor.Extract(completion.Text, l.debugSink)
	if err != nil {
		l.fail(ctx, project.ID, err.Error())
		return
	}

	ready := boardmodel.SpecStatusReady
	spec := extracted.Spec
	tasks := extracted.Tasks
	_, err = l.backend.UpdateBacklog(ctx, project.ID, store.BacklogPatch{
		SpecStatus: &ready,
		Spec:       &spec,
		SpecTasks:  &tasks,
	})
	if err != nil {
		l.logger.Warn("spec generator: updateBacklog failed", "project", project.ID, "error", err)
		return
	}
	l.publisher.Publish(events.NewEvent(events.EventSpecReady, project.ID, events.SpecStatusData{ProjectID: project.ID}))
}

func (l *Loop) fail(ctx context.Context, projectID, errText string) {
	errStatus := boardmodel.SpecStatusError
	_, err := l.backend.UpdateBacklog(ctx, projectID, store.BacklogPatch{
		SpecStatus: &errStatus,
		Spec:       &errText,
	})
	if err != nil {
		l.logger.Warn("spec generator: updateBacklog (error path) failed", "project", projectID, "error", err)
	}
	l.publisher.Publish(events.NewEvent(events.EventSpecError, projectID, events.SpecStatusData{ProjectID: projectID, Error: errText}))
}

// Package taskrunner implements the Task Runner Loop (component L): it
// polls the Queue column, routes each task to an agent, supervises that
// agent as a child process, archives the result, and advances the task
// through the workflow state machine.
package taskrunner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentboard/agentboard/internal/archiver"
	"github.com/agentboard/agentboard/internal/boardmodel"
	"github.com/agentboard/agentboard/internal/bootstrap"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/metacodec"
	"github.com/agentboard/agentboard/internal/registry"
	"github.com/agentboard/agentboard/internal/router"
	"github.com/agentboard/agentboard/internal/store"
	"github.com/agentboard/agentboard/internal/supervisor"
)

// maxAttempts is how many dispatches a task gets before it is parked in
// Review as permanently failed.
const maxAttempts = 3

// maxRelatedTasks bounds how many sibling tasks are folded into the
// prompt's "related tasks" section.
const maxRelatedTasks = 5

// constraintBlock is appended to every prompt, in German per the agreed
// agent-facing contract; it tells the agent exactly what file to leave
// behind for the Result Archiver to pick up.
const constraintBlock = `Wichtig: Erstelle am Ende unbedingt eine Datei RESULT.md im Arbeitsverzeichnis mit:
- einer kurzen Zusammenfassung der durchgefuehrten Arbeit
- einer Liste der veraenderten oder erstellten Dateien
- relevanten Links (Pull Requests, Commits, Dokumentation)
- falls die Aufgabe nicht abgeschlossen werden konnte, einer klaren Fehlerbeschreibung`

// ActiveAgent describes a currently-dispatched task for the health surface.
type ActiveAgent struct {
	Agent     string
	PID       int
	StartedAt time.Time
}

// FreeMemoryMB reports current free system memory; swappable in tests.
type FreeMemoryMB func() int

// Runner is the Task Runner Loop.
type Runner struct {
	backend        store.Backend
	registry       *registry.Registry
	publisher      events.Publisher
	freeMemoryMB   FreeMemoryMB
	logger         *slog.Logger
	interval       time.Duration
	concurrencyCap int
	globalFloorMB  int
	workspacesDir  string
	resultsDir     string
	now            func() time.Time

	mu           sync.Mutex
	active       map[string]ActiveAgent
	columnIDs    bootstrap.ColumnIDs
	completed    int
	lastPollErr  error

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Config configures a Runner.
type Config struct {
	Backend        store.Backend
	Registry       *registry.Registry
	Publisher      events.Publisher
	FreeMemoryMB   FreeMemoryMB
	Logger         *slog.Logger
	Interval       time.Duration
	ConcurrencyCap int
	GlobalFloorMB  int
	WorkspacesDir  string
	ResultsDir     string
	ColumnIDs      bootstrap.ColumnIDs
}

// New constructs a Runner from cfg, applying defaults for zero fields.
func New(cfg Config) *Runner {
	if cfg.Interval == 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.ConcurrencyCap == 0 {
		cfg.ConcurrencyCap = 1
	}
	if cfg.GlobalFloorMB == 0 {
		cfg.GlobalFloorMB = 400
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNopPublisher()
	}
	if cfg.FreeMemoryMB == nil {
		cfg.FreeMemoryMB = defaultFreeMemoryMB
	}
	return &Runner{
		backend:        cfg.Backend,
		registry:       cfg.Registry,
		publisher:      cfg.Publisher,
		freeMemoryMB:   cfg.FreeMemoryMB,
		logger:         cfg.Logger,
		interval:       cfg.Interval,
		concurrencyCap: cfg.ConcurrencyCap,
		globalFloorMB:  cfg.GlobalFloorMB,
		workspacesDir:  cfg.WorkspacesDir,
		resultsDir:     cfg.ResultsDir,
		columnIDs:      cfg.ColumnIDs,
		now:            time.Now,
		active:         make(map[string]ActiveAgent),
		stopCh:         make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop signals the loop to exit and waits for it. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs a single poll. Admission (capacity, RAM floor) is checked
// synchronously here, but each dispatch it admits runs the agent process
// in its own goroutine, so a slow agent never blocks the next tick or the
// admission of other tasks up to the concurrency cap.
func (r *Runner) tick(ctx context.Context) {
	if r.atCapacity() {
		return
	}
	if r.freeMemoryMB() < r.globalFloorMB {
		r.publisher.Publish(events.NewEvent(events.EventPollSkipped, events.GlobalTaskID, nil))
		return
	}

	board, err := r.backend.GetBoard(ctx)
	if err != nil {
		r.logger.Warn("task runner: fetch board failed", "error", err)
		r.setPollErr(err)
		return
	}
	r.setPollErr(nil)

	ids, changed, err := bootstrap.Ensure(ctx, r.backend, nil)
	if err == nil {
		r.mu.Lock()
		r.columnIDs = ids
		r.mu.Unlock()
		if changed {
			r.publisher.Publish(events.NewEvent(events.EventColumnBootstrap, events.GlobalTaskID, nil))
		}
	}

	for !r.atCapacity() {
		queue, ok := board.FindColumnByTitle(boardmodel.ColumnQueue)
		if !ok || len(queue.Tasks) == 0 {
			return
		}

		task := r.pickNext(queue.Tasks)
		if task == nil {
			return
		}

		if !r.dispatch(ctx, board, *task) {
			return
		}
	}
}

// pickNext returns the first queued task not already tracked locally,
// repairing stale running state along the way.
func (r *Runner) pickNext(tasks []boardmodel.Task) *boardmodel.Task {
	for i := range tasks {
		t := tasks[i]
		if r.isActive(t.ID) {
			continue
		}

		meta, ok := metacodec.Parse(t.Description)
		if ok && meta.Status == boardmodel.AgentStatusRunning {
			r.repairStale(t)
		}
		return &t
	}
	return nil
}

// repairStale rewrites a task's meta from running to queued when no local
// supervisor entry backs it, per the stale-state invariant.
func (r *Runner) repairStale(t boardmodel.Task) {
	meta, ok := metacodec.Parse(t.Description)
	if !ok {
		return
	}
	meta.Status = boardmodel.AgentStatusQueued
	r.writeMeta(context.Background(), t, *meta)
}

// dispatch routes task to an agent and, if admitted, marks it active and
// fires off the supervised run in its own goroutine so a slow agent never
// blocks this tick or the admission of the next task. It returns false
// when it declines to dispatch (no eligible agent, RAM floor, workspace
// error), signalling the caller to stop trying further tasks this tick.
func (r *Runner) dispatch(ctx context.Context, board *boardmodel.Board, task boardmodel.Task) bool {
	agents := r.registry.Agents()
	meta, ok := metacodec.Parse(task.Description)
	if !ok {
		meta = &boardmodel.AgentMeta{}
	}
	strippedDesc := metacodec.Strip(task.Description)

	agentID := router.Route(meta, task.Title, strippedDesc, agents)
	agent, found := findAgent(agents, agentID)
	if !found {
		r.logger.Warn("task runner: routed agent not found in registry", "agent", agentID)
		return false
	}
	if r.freeMemoryMB() < agent.RAMMB {
		r.logger.Debug("task runner: skipping tick, agent RAM floor not met", "agent", agent.ID)
		return false
	}

	workDir := filepath.Join(r.workspacesDir, task.ID)
	if err := ensureDir(workDir); err != nil {
		r.logger.Warn("task runner: create workspace failed", "task", task.ID, "error", err)
		return false
	}

	meta.Agent = &agent.ID
	meta.Attempts++
	meta.Status = boardmodel.AgentStatusRunning
	startedAt := r.now()
	meta.StartedAt = &startedAt
	r.writeMeta(ctx, task, *meta)
	r.moveTask(ctx, task.ID, r.columnIDs.AgentWIP)

	r.markActive(task.ID, ActiveAgent{Agent: agent.ID, StartedAt: startedAt})

	prompt := buildPrompt(task, strippedDesc, board)
	r.publisher.Publish(events.NewEvent(events.EventTaskRunning, task.ID, events.TaskStatusData{Agent: agent.ID, Attempts: meta.Attempts}))

	r.wg.Add(1)
	go r.runAgent(ctx, task, *meta, agent, workDir, prompt)
	return true
}

// runAgent supervises one agent run to completion and updates board state
// from the result. It runs in its own goroutine per dispatch, which is
// what makes ConcurrencyCap > 1 actually let multiple agents run at once.
func (r *Runner) runAgent(ctx context.Context, task boardmodel.Task, meta boardmodel.AgentMeta, agent boardmodel.Agent, workDir, prompt string) {
	defer r.wg.Done()
	defer r.clearActive(task.ID)

	onStart := func(pid int) { r.updateActivePID(task.ID, pid) }
	res := supervisor.Run(ctx, agent, prompt, workDir, r.logger, onStart)

	summary, archiveErr := archiver.Archive(r.resultsDir, task.ID, workDir, res, r.now())
	if archiveErr != nil {
		r.logger.Warn("task runner: archive failed", "task", task.ID, "error", archiveErr)
	}

	if res.Success {
		r.onSuccess(ctx, task, meta, summary)
		return
	}
	r.onFailure(ctx, task, meta, res, summary)
}

func (r *Runner) onSuccess(ctx context.Context, task boardmodel.Task, meta boardmodel.AgentMeta, summary string) {
	meta.Status = boardmodel.AgentStatusReview
	meta.ResultPath = filepath.Join(r.resultsDir, task.ID)
	meta.LastError = nil
	meta.ResultSummary = summary
	r.writeMeta(ctx, task, meta)
	r.moveTask(ctx, task.ID, r.columnIDs.Review)

	r.mu.Lock()
	r.completed++
	r.mu.Unlock()

	r.publisher.Publish(events.NewEvent(events.EventTaskReview, task.ID, events.TaskStatusData{Agent: strOrEmpty(meta.Agent), Summary: summary}))
}

func (r *Runner) onFailure(ctx context.Context, task boardmodel.Task, meta boardmodel.AgentMeta, res supervisor.Result, summary string) {
	errText := failureText(res)
	meta.LastError = &errText
	meta.ResultSummary = summary

	if meta.Attempts < maxAttempts {
		meta.Status = boardmodel.AgentStatusQueued
		r.writeMeta(ctx, task, meta)
		r.moveTask(ctx, task.ID, r.columnIDs.Queue)
		r.publisher.Publish(events.NewEvent(events.EventTaskRetry, task.ID, events.TaskStatusData{Agent: strOrEmpty(meta.Agent), Attempts: meta.Attempts, Error: errText}))
		return
	}

	meta.Status = boardmodel.AgentStatusFailed
	r.writeMeta(ctx, task, meta)
	r.moveTask(ctx, task.ID, r.columnIDs.Review)
	r.publisher.Publish(events.NewEvent(events.EventTaskFailed, task.ID, events.TaskStatusData{Agent: strOrEmpty(meta.Agent), Attempts: meta.Attempts, Error: errText}))
}

func failureText(res supervisor.Result) string {
	if res.TimedOut {
		return "Timeout (10min)"
	}
	stderr := res.Stderr
	if len(stderr) > 200 {
		stderr = stderr[:200]
	}
	return fmt.Sprintf("Exit %d: %s", res.ExitCode, stderr)
}

// buildPrompt assembles the task title, stripped description, the
// constraint block, and up to maxRelatedTasks siblings sharing the same
// non-zero color.
func buildPrompt(task boardmodel.Task, strippedDesc string, board *boardmodel.Board) string {
	var b strings.Builder
	b.WriteString(task.Title)
	b.WriteString("\n\n")
	b.WriteString(strippedDesc)
	b.WriteString("\n\n")
	b.WriteString(constraintBlock)

	if task.Color != 0 {
		related := relatedTasks(task, board)
		if len(related) > 0 {
			b.WriteString("\n\nVerwandte Aufgaben:\n")
			for _, rt := range related {
				b.WriteString("- ")
				b.WriteString(rt.Title)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func relatedTasks(task boardmodel.Task, board *boardmodel.Board) []boardmodel.Task {
	var out []boardmodel.Task
	for _, col := range board.Columns {
		for _, t := range col.Tasks {
			if t.ID == task.ID || t.Color != task.Color {
				continue
			}
			out = append(out, t)
			if len(out) == maxRelatedTasks {
				return out
			}
		}
	}
	return out
}

func findAgent(agents []boardmodel.Agent, id string) (boardmodel.Agent, bool) {
	for _, a := range agents {
		if a.ID == id {
			return a, true
		}
	}
	return boardmodel.Agent{}, false
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *Runner) writeMeta(ctx context.Context, task boardmodel.Task, meta boardmodel.AgentMeta) {
	desc := metacodec.Embed(metacodec.Strip(task.Description), meta)
	_, err := r.backend.UpdateTask(ctx, task.ID, store.TaskPatch{Description: &desc})
	if err != nil {
		r.logger.Warn("task runner: write meta failed, continuing", "task", task.ID, "error", err)
	}
}

func (r *Runner) moveTask(ctx context.Context, taskID, columnID string) {
	if columnID == "" {
		return
	}
	if err := r.backend.MoveTask(ctx, taskID, columnID); err != nil {
		r.logger.Warn("task runner: move task failed, continuing", "task", taskID, "error", err)
	}
}

func (r *Runner) atCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active) >= r.concurrencyCap
}

func (r *Runner) isActive(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[taskID]
	return ok
}

func (r *Runner) markActive(taskID string, a ActiveAgent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[taskID] = a
}

func (r *Runner) clearActive(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, taskID)
}

// updateActivePID backfills the real child process PID once the
// supervised run has actually started it. A no-op if the task cleared
// between markActive and the process starting (shutdown raced the run).
func (r *Runner) updateActivePID(taskID string, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.active[taskID]
	if !ok {
		return
	}
	a.PID = pid
	r.active[taskID] = a
}

func (r *Runner) setPollErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPollErr = err
}

// Status returns a snapshot of runner state for the health surface.
func (r *Runner) Status() (active map[string]ActiveAgent, completed int, lastPollErr error, columnIDs bootstrap.ColumnIDs) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ActiveAgent, len(r.active))
	for k, v := range r.active {
		out[k] = v
	}
	return out, r.completed, r.lastPollErr, r.columnIDs
}

package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serpdesk/serpdesk/internal/apperr"
	"github.com/serpdesk/serpdesk/internal/metrics"
	"github.com/serpdesk/serpdesk/internal/storage"
)

// MaxBatchSize is the service's upper bound on URLs per task. Larger batches
// are rejected locally.
const MaxBatchSize = 10000

// DefaultPollInterval spaces status checks for pending check tasks.
const DefaultPollInterval = 10 * time.Second

// State is the lifecycle position of a task client.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePending    State = "pending"
	// StateSubmitted is the terminal state of indexer tasks: the service
	// returns no synchronous completion signal for pure indexing requests,
	// so the client does not poll.
	StateSubmitted State = "submitted"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateCompleted || s == StateFailed
}

// ClientOption adjusts a Client.
type ClientOption func(*Client)

// WithPollInterval overrides the status poll spacing.
func WithPollInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithStore enables best-effort task persistence.
func WithStore(store storage.Store) ClientOption {
	return func(c *Client) { c.store = store }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// Client drives one task through submit, poll, and report retrieval. A Client
// owns at most one active polling loop; submitting again cancels the previous
// one. All methods are safe for concurrent use.
type Client struct {
	api      API
	store    storage.Store
	logger   *slog.Logger
	interval time.Duration

	mu         sync.Mutex
	gen        uint64 // bumped by every Submit; stale goroutines check it
	state      State
	taskID     string
	engine     Engine
	kind       Kind
	report     *Report
	lastErr    error
	persistErr error
	cancelPoll context.CancelFunc
	done       chan struct{}
	doneOnce   sync.Once
	persistWG  sync.WaitGroup
}

// NewClient builds a Client over api.
func NewClient(api API, opts ...ClientOption) *Client {
	c := &Client{
		api:      api,
		logger:   slog.Default(),
		interval: DefaultPollInterval,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates and submits a URL batch. For checker tasks polling starts
// on success and the final state arrives asynchronously; watch Done(). For
// indexer tasks the terminal state is StateSubmitted immediately.
//
// When projectID is non-empty and a store is configured, the task row is
// persisted best-effort after successful submission; a persistence failure is
// logged and recorded separately, never rolling back the submission.
func (c *Client) Submit(ctx context.Context, urls []string, kind Kind, engine Engine, title, projectID string) error {
	sanitized := sanitizeURLs(urls)
	if len(sanitized) == 0 {
		return apperr.Validation("provide at least one non-blank URL")
	}
	if len(sanitized) > MaxBatchSize {
		return apperr.Validation(fmt.Sprintf("at most %d URLs per task, got %d", MaxBatchSize, len(sanitized)))
	}

	c.mu.Lock()
	if c.cancelPoll != nil {
		c.cancelPoll()
		c.cancelPoll = nil
	}
	c.gen++
	gen := c.gen
	c.state = StateSubmitting
	c.engine = engine
	c.kind = kind
	c.report = nil
	c.lastErr = nil
	c.persistErr = nil
	c.done = make(chan struct{})
	c.doneOnce = sync.Once{}
	c.mu.Unlock()

	taskID, err := c.api.CreateTask(ctx, engine, kind, sanitized, title)
	if err != nil {
		c.fail(gen, err)
		return err
	}

	c.mu.Lock()
	if gen == c.gen {
		c.taskID = taskID
	}
	c.mu.Unlock()

	c.logger.Info("task created", "task_id", taskID, "kind", kind, "urls", len(sanitized))

	if projectID != "" && c.store != nil {
		c.persistWG.Add(1)
		go c.persistTask(gen, projectID, taskID, kind, engine, sanitized)
	}

	if kind == KindIndexer {
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateSubmitted
			c.finishLocked()
		}
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	if gen == c.gen {
		c.state = StatePending
	}
	c.mu.Unlock()
	c.startPolling(taskID, engine, gen)
	return nil
}

// sanitizeURLs trims, drops blanks and de-duplicates preserving order.
func sanitizeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// startPolling launches the single polling goroutine. The loop is detached
// from the submit context: polling outlives the submitting request and stops
// only on completion, report failure, or Close.
func (c *Client) startPolling(taskID string, engine Engine, gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancelPoll = cancel
	c.mu.Unlock()

	go c.pollLoop(ctx, taskID, engine, gen)
}

func (c *Client) pollLoop(ctx context.Context, taskID string, engine Engine, gen uint64) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			statuses, err := c.api.TaskStatus(ctx, engine, KindChecker, []string{taskID})
			if err != nil {
				// A failed status call must not strand the task: log and
				// keep polling until completion or Close.
				metrics.PollTicksTotal.WithLabelValues("error").Inc()
				c.logger.Warn("status poll failed", "task_id", taskID, "err", err)
				continue
			}

			if len(statuses) == 0 || !statuses[0].IsCompleted {
				metrics.PollTicksTotal.WithLabelValues("pending").Inc()
				continue
			}

			metrics.PollTicksTotal.WithLabelValues("completed").Inc()
			c.retrieveReport(ctx, taskID, engine, gen)
			return
		}
	}
}

func (c *Client) retrieveReport(ctx context.Context, taskID string, engine Engine, gen uint64) {
	report, err := c.api.FullReport(ctx, engine, KindChecker, taskID)
	if err != nil {
		c.logger.Error("report retrieval failed", "task_id", taskID, "err", err)
		c.fail(gen, err)
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		// A newer Submit took over while the report was in flight.
		c.mu.Unlock()
		return
	}
	c.report = report
	c.state = StateCompleted
	c.finishLocked()
	c.mu.Unlock()

	c.logger.Info("task completed", "task_id", taskID,
		"indexed", len(report.IndexedLinks), "unindexed", len(report.UnindexedLinks))

	if c.store != nil {
		if err := c.store.UpdateTaskStatus(ctx, taskID, string(StateCompleted)); err != nil {
			c.logger.Warn("task status update failed", "task_id", taskID, "err", err)
		}
	}
}

func (c *Client) persistTask(gen uint64, projectID, taskID string, kind Kind, engine Engine, urls []string) {
	defer c.persistWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.store.SaveTask(ctx, &storage.TaskRecord{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		TaskID:    taskID,
		Kind:      string(kind),
		Engine:    string(engine),
		URLs:      urls,
		Status:    "created",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		c.logger.Warn("task persistence failed", "task_id", taskID, "project", projectID, "err", err)
		c.mu.Lock()
		if gen == c.gen {
			c.persistErr = err
		}
		c.mu.Unlock()
	}
}

// fail moves the client to StateFailed unless a newer Submit took over.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.state = StateFailed
	c.lastErr = err
	c.finishLocked()
}

// finishLocked cancels polling and closes the current done channel. Caller
// holds mu and has already checked the generation.
func (c *Client) finishLocked() {
	if c.cancelPoll != nil {
		c.cancelPoll()
		c.cancelPoll = nil
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// Close cancels any active polling. Safe to call multiple times; a client
// discarded mid-poll leaks no ticker.
func (c *Client) Close() {
	c.mu.Lock()
	if c.cancelPoll != nil {
		c.cancelPoll()
		c.cancelPoll = nil
	}
	c.mu.Unlock()
	c.persistWG.Wait()
}

// Done is closed when the client reaches a terminal state. Call after Submit
// returns; a re-submission swaps in a fresh channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TaskID returns the opaque remote identifier, empty before submission
// succeeds.
func (c *Client) TaskID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taskID
}

// Report returns the retrieved report, nil unless StateCompleted.
func (c *Client) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Err returns the error that moved the client to StateFailed.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// PersistErr reports the best-effort persistence outcome, independent of the
// submission result.
func (c *Client) PersistErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistErr
}

// Package engine orchestrates observed download jobs: it polls the remote
// server per task, normalizes heterogeneous status payloads, derives weighted
// progress, detects stalls, retries failed jobs and reconciles the local view
// against the server's authoritative task list.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"downbeat/internal/domain"
	"downbeat/internal/remote"
	"downbeat/internal/repository"
	"downbeat/internal/store"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNotRetryable = errors.New("task is not retryable")
)

// RemoteAPI is the slice of the download server the engine depends on.
type RemoteAPI interface {
	StartJob(ctx context.Context, req remote.StartRequest) (*remote.StartResult, error)
	TaskStatus(ctx context.Context, taskID string) (*remote.StatusEnvelope, error)
	ListTasks(ctx context.Context) ([]remote.TaskInfo, error)
	CancelTask(ctx context.Context, taskID string) error
	CancelTasks(ctx context.Context, taskIDs []string) error
}

type Config struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration

	// StallPolls is how many consecutive identical real-time polls force a
	// synthetic stall error.
	StallPolls int

	DoneCleanupDelay    time.Duration
	FailureCleanupDelay time.Duration

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// RequestsPerSecond caps the aggregate poll rate against the server.
	// Zero disables the limiter.
	RequestsPerSecond float64

	Logger *logrus.Logger
}

type Engine struct {
	cfg     Config
	store   *store.Store
	remote  RemoteAPI
	cache   repository.StatusCache
	limiter *rate.Limiter
	logger  *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	pollers  map[string]chan struct{}
	cleanups map[string]*time.Timer
	preseed  map[string]domain.StatusUpdate
}

func New(cfg Config, st *store.Store, api RemoteAPI, cache repository.StatusCache) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 10 * time.Second
	}
	if cfg.StallPolls <= 0 {
		cfg.StallPolls = 600
	}
	if cfg.DoneCleanupDelay <= 0 {
		cfg.DoneCleanupDelay = 3 * time.Second
	}
	if cfg.FailureCleanupDelay <= 0 {
		cfg.FailureCleanupDelay = 20 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Engine{
		cfg:      cfg,
		store:    st,
		remote:   api,
		cache:    cache,
		limiter:  limiter,
		logger:   cfg.Logger,
		pollers:  make(map[string]chan struct{}),
		cleanups: make(map[string]*time.Timer),
		preseed:  make(map[string]domain.StatusUpdate),
	}
}

// Start loads the durable cache for cold-start pre-seeding and begins the
// reconciliation loop, which performs the initial resume against the
// server's task list.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if e.cache != nil {
		cached, err := e.cache.Load(e.ctx)
		if err != nil {
			e.logger.Warnf("load status cache: %v", err)
		} else {
			e.preseed = cached
		}
	}

	e.wg.Add(1)
	go e.reconcileLoop()

	e.logger.Infof("engine started, polling every %s, reconciling every %s", e.cfg.PollInterval, e.cfg.ReconcileInterval)
	return nil
}

func (e *Engine) Shutdown() {
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Lock()
	for id, ch := range e.pollers {
		close(ch)
		delete(e.pollers, id)
	}
	for id, timer := range e.cleanups {
		timer.Stop()
		delete(e.cleanups, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// AddRequest describes a job to start and observe.
type AddRequest struct {
	Kind       domain.Kind
	URL        string
	Name       string
	Artist     string
	AlbumGroup string
}

// AddTask starts a job on the server and begins tracking the resulting task
// ids. Bulk artist jobs fan out into one album entry per returned id.
func (e *Engine) AddTask(ctx context.Context, req AddRequest) ([]domain.TaskEntry, error) {
	if req.URL == "" {
		return nil, errors.New("resource url is required")
	}

	result, err := e.remote.StartJob(ctx, remote.StartRequest{
		Kind:       string(req.Kind),
		URL:        req.URL,
		Name:       req.Name,
		Artist:     req.Artist,
		AlbumGroup: req.AlbumGroup,
	})
	if err != nil {
		return nil, err
	}

	kind := req.Kind
	if req.Kind == domain.KindArtist && len(result.TaskIDs) > 1 {
		kind = domain.KindAlbum
	}

	entries := make([]domain.TaskEntry, 0, len(result.TaskIDs))
	for _, taskID := range result.TaskIDs {
		entry := e.store.Add(ctx, domain.TaskEntry{
			ExternalTaskID: taskID,
			Kind:           kind,
			Display:        domain.DisplayItem{Name: req.Name, Artist: req.Artist},
			SourceURL:      req.URL,
		})
		e.logger.WithField("internal_id", entry.InternalID).Infof("tracking %s task %s", kind, taskID)
		e.startPolling(entry.InternalID)
		entries = append(entries, entry)
	}
	return entries, nil
}

// Cancel stops a task: server-side cancel, poller teardown and immediate
// removal. Cancelling an unknown or already-cancelled task is a no-op.
func (e *Engine) Cancel(ctx context.Context, internalID string) error {
	entry, ok := e.store.Get(internalID)
	if !ok {
		return nil
	}

	e.stopPolling(internalID)
	e.cancelCleanup(internalID)

	if !entry.HasEnded && entry.ExternalTaskID != "" {
		if err := e.remote.CancelTask(ctx, entry.ExternalTaskID); err != nil {
			e.logger.WithField("internal_id", internalID).Warnf("server cancel: %v", err)
		}
	}

	e.store.Update(ctx, internalID, func(t *domain.TaskEntry) {
		t.Status = domain.StatusCancelled
		t.Message = "Cancelled"
		t.HasEnded = true
		t.IsRetrying = false
	})
	e.store.Remove(ctx, internalID)
	return nil
}

// CancelAll cancels every live task, batching the server request where the
// backend supports it and falling back to per-task cancellation otherwise.
func (e *Engine) CancelAll(ctx context.Context) error {
	var live []domain.TaskEntry
	var taskIDs []string
	for _, entry := range e.store.List() {
		if entry.HasEnded {
			continue
		}
		live = append(live, entry)
		if entry.ExternalTaskID != "" {
			taskIDs = append(taskIDs, entry.ExternalTaskID)
		}
	}
	if len(live) == 0 {
		return nil
	}

	err := e.remote.CancelTasks(ctx, taskIDs)
	if err != nil {
		if !errors.Is(err, remote.ErrBatchUnsupported) {
			e.logger.Warnf("batch cancel: %v", err)
		}
		for _, taskID := range taskIDs {
			if cancelErr := e.remote.CancelTask(ctx, taskID); cancelErr != nil {
				e.logger.Warnf("cancel task %s: %v", taskID, cancelErr)
			}
		}
	}

	for _, entry := range live {
		e.stopPolling(entry.InternalID)
		e.cancelCleanup(entry.InternalID)
		e.store.Update(ctx, entry.InternalID, func(t *domain.TaskEntry) {
			t.Status = domain.StatusCancelled
			t.Message = "Cancelled"
			t.HasEnded = true
			t.IsRetrying = false
		})
		e.store.Remove(ctx, entry.InternalID)
	}
	return nil
}

// applyUpdate runs one normalized payload through relevance resolution,
// stall detection, progress aggregation and the store. It reports whether
// the entry's lifecycle ended, which tells the poll loop to stop.
func (e *Engine) applyUpdate(internalID string, update *domain.StatusUpdate) bool {
	entry, ok := e.store.Get(internalID)
	if !ok || entry.HasEnded {
		return true
	}

	u := *update
	if u.Kind == "" {
		u.Kind = entry.Kind
	}

	display, relevant := domain.Resolve(entry.Kind, &u)
	if !relevant {
		// belongs to a different logical task; skip this cycle
		return false
	}

	fp, stalled := observeStall(entry.Stall, &u, e.cfg.StallPolls)
	if stalled {
		window := time.Duration(e.cfg.StallPolls) * e.cfg.PollInterval
		u = *stalledUpdate(&u, window)
		fp = domain.StallFingerprint{}
		e.logger.WithField("internal_id", internalID).Warn(u.ErrorMessage)
	}

	// A synthesized stall ends the entry even when the wedged payload was a
	// child track: the failure is the collection's, not the child's.
	ends := domain.Terminates(display, &u) || stalled

	// The collection's own done payload counts as the last item so the
	// weighted math lands on exactly 100.
	if ends && u.Status == domain.StatusDone && display.MultiItem() {
		if u.TotalItems == 0 {
			u.TotalItems = entry.Display.TotalItems
		}
		u.CurrentIndex = u.TotalItems
	}

	progress := OverallProgress(display, &u, entry.Progress)

	// A child item reaching its own terminal state leaves the collection
	// entry live.
	entryStatus := u.Status
	if u.Status.Terminal() && !ends {
		entryStatus = domain.StatusProcessing
	}

	applied := false
	e.store.Update(e.ctx, internalID, func(t *domain.TaskEntry) {
		// HasEnded may have flipped between the snapshot above and this
		// closure; a terminal state is never overwritten.
		if t.HasEnded {
			return
		}
		applied = true

		t.Kind = display
		if u.Parent != nil {
			t.Parent = u.Parent
		}
		if u.Kind == display {
			if u.Name != "" {
				t.Display.Name = u.Name
			}
			if u.Artist != "" {
				t.Display.Artist = u.Artist
			}
			if u.TotalItems > 0 {
				t.Display.TotalItems = u.TotalItems
			}
		} else if u.Parent != nil {
			if u.Parent.Title != "" {
				t.Display.Name = u.Parent.Title
			}
			if u.Parent.Owner != "" {
				t.Display.Artist = u.Parent.Owner
			}
			if u.Parent.TotalItems > 0 {
				t.Display.TotalItems = u.Parent.TotalItems
			}
		}
		if t.SourceURL == "" {
			if u.Kind == display && u.SourceURL != "" {
				t.SourceURL = u.SourceURL
			} else if u.Parent != nil && u.Parent.SourceURL != "" {
				t.SourceURL = u.Parent.SourceURL
			}
		}
		if u.RetryCount > t.RetryCount {
			t.RetryCount = u.RetryCount
		}

		t.LastUpdate = &u
		t.Stall = fp
		t.Progress = progress
		t.Status = entryStatus

		rendered := u
		rendered.Status = entryStatus
		t.Message = RenderMessage(&rendered, t.Display, display)

		if ends {
			t.HasEnded = true
			t.IsRetrying = false
		}
	})
	if !applied {
		return true
	}

	if ends {
		e.stopPolling(internalID)
		e.scheduleCleanup(internalID, u.Status)
	}
	return ends
}

// failConnection forces an entry into a terminal error after a transport
// failure. The fetch is not retried automatically; a manual retry
// re-dispatches a fresh job.
func (e *Engine) failConnection(internalID string, cause error) {
	e.logger.WithField("internal_id", internalID).Warnf("status poll failed: %v", cause)

	entry, ok := e.store.Get(internalID)
	if !ok || entry.HasEnded {
		return
	}

	u := domain.StatusUpdate{
		Status:       domain.StatusError,
		Kind:         entry.Kind,
		ErrorMessage: "connection lost",
		CanRetry:     true,
	}
	applied := false
	e.store.Update(e.ctx, internalID, func(t *domain.TaskEntry) {
		if t.HasEnded {
			return
		}
		applied = true
		t.Status = domain.StatusError
		t.Message = "Failed: connection lost"
		t.LastUpdate = &u
		t.HasEnded = true
		t.IsRetrying = false
	})
	if applied {
		e.scheduleCleanup(internalID, domain.StatusError)
	}
}

func (e *Engine) scheduleCleanup(internalID string, status domain.Status) {
	delay := e.cfg.DoneCleanupDelay
	if status.Failed() {
		delay = e.cfg.FailureCleanupDelay
	}

	e.mu.Lock()
	if old, ok := e.cleanups[internalID]; ok {
		old.Stop()
	}
	e.cleanups[internalID] = time.AfterFunc(delay, func() {
		e.removeEntry(context.Background(), internalID)
	})
	e.mu.Unlock()
}

func (e *Engine) cancelCleanup(internalID string) {
	e.mu.Lock()
	if timer, ok := e.cleanups[internalID]; ok {
		timer.Stop()
		delete(e.cleanups, internalID)
	}
	e.mu.Unlock()
}

func (e *Engine) removeEntry(ctx context.Context, internalID string) {
	e.stopPolling(internalID)
	e.cancelCleanup(internalID)
	e.store.Remove(ctx, internalID)
}

func (e *Engine) takePreseed(taskID string) (domain.StatusUpdate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cached, ok := e.preseed[taskID]
	if ok {
		delete(e.preseed, taskID)
	}
	return cached, ok
}

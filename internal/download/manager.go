// Package download coordinates concurrent stream downloads and removals
// against a bounded worker pool, with durable per-item state. The
// manager decides which downloads may run, stops and retries them, and
// publishes every observable state change to listeners and to the index.
package download

import (
	"sort"
	"sync"

	apperr "offliner/internal/errors"
	"offliner/internal/logger"
	"offliner/internal/requirements"
	"offliner/internal/validate"
)

// Options configures a Manager. Index and DownloaderFactory are
// required; everything else has a usable zero value.
type Options struct {
	Index             Index
	DownloaderFactory DownloaderFactory

	// MaxSimultaneousDownloads caps concurrent fetch workers. Values
	// below 1 mean 1. Remove workers are never capped.
	MaxSimultaneousDownloads int

	// MinRetryCount is the number of transient fetch errors tolerated
	// without progress before a download fails. Zero disables retries.
	MinRetryCount int

	// Requirements is the initial precondition set. Zero means a network
	// connection is required.
	Requirements requirements.Flags

	// WatcherFactory builds the precondition watcher; nil selects the
	// polling host watcher.
	WatcherFactory WatcherFactory

	// Listeners are registered before the first event fires, so they
	// observe the bootstrap notifications.
	Listeners []Listener
}

// Manager is the public controller. Its methods are safe for concurrent
// use; mutating calls made after Release fail with ErrReleased.
type Manager struct {
	sched      *scheduler
	dispatch   *eventLoop
	newWatcher WatcherFactory

	listenersMu sync.Mutex
	listeners   []Listener

	mu           sync.RWMutex
	states       map[string]Record
	idle         bool
	initialized  bool
	released     bool
	requirements requirements.Flags
	notMet       requirements.Flags
	watcher      Watcher

	releaseOnce sync.Once
	releaseDone chan struct{}
}

// NewManager builds a manager, starts its watcher and internal
// goroutines, and begins loading unfinished records from the index.
// Loading runs on the scheduler goroutine and may finish before
// NewManager returns, so only listeners passed in Options.Listeners are
// sure to observe the initialization events.
func NewManager(opts Options) (*Manager, error) {
	if opts.Index == nil {
		return nil, apperr.NewWithMessage("download.NewManager", apperr.ErrInvalidRequest, "Index is required")
	}
	if opts.DownloaderFactory == nil {
		return nil, apperr.NewWithMessage("download.NewManager", apperr.ErrInvalidRequest, "DownloaderFactory is required")
	}
	maxSimultaneous := opts.MaxSimultaneousDownloads
	if maxSimultaneous < 1 {
		maxSimultaneous = 1
	}
	minRetry := opts.MinRetryCount
	if minRetry < 0 {
		minRetry = 0
	}
	required := opts.Requirements
	if required == 0 {
		required = requirements.Network
	}
	newWatcher := opts.WatcherFactory
	if newWatcher == nil {
		newWatcher = func(req requirements.Flags) Watcher {
			return requirements.NewWatcher(req, "")
		}
	}

	m := &Manager{
		dispatch:     newEventLoop(),
		newWatcher:   newWatcher,
		listeners:    append([]Listener{}, opts.Listeners...),
		states:       make(map[string]Record),
		requirements: required,
		releaseDone:  make(chan struct{}),
	}
	m.sched = newScheduler(m, opts.Index, opts.DownloaderFactory, maxSimultaneous, minRetry, 0)

	watcher := newWatcher(required)
	m.watcher = watcher
	notMet := watcher.Start(m.onWatcherNotMet)
	m.notMet = notMet
	m.sched.notMet = notMet

	m.dispatch.start()
	m.sched.loop.start()
	m.sched.post(m.sched.load)

	logger.Log.Info().
		Int("maxSimultaneous", maxSimultaneous).
		Int("minRetryCount", minRetry).
		Str("requirements", required.String()).
		Msg("download manager started")
	return m, nil
}

// AddDownload posts an add event for the request: a merge when the id is
// already known, a fresh queued record otherwise.
func (m *Manager) AddDownload(req Request) error {
	if err := validate.Request(req.ID, req.URI); err != nil {
		return err
	}
	return m.post(func() { m.sched.addDownload(req) })
}

// RemoveDownload posts a remove event. Removing an unknown id, or one
// whose removal has already finished, is a no-op. Removing an id whose
// removal is still running publishes its removing state again without
// starting a second worker.
func (m *Manager) RemoveDownload(id string) error {
	if err := validate.ID(id); err != nil {
		return err
	}
	return m.post(func() { m.sched.removeDownload(id) })
}

// StartDownloads clears the manager-wide stop reason.
func (m *Manager) StartDownloads() error {
	return m.post(func() { m.sched.setStopReason("", StopReasonNone) })
}

// StopDownloads sets the manager-wide stop reason; with no argument the
// undefined sentinel is used. StopReasonNone is rejected.
func (m *Manager) StopDownloads(reason ...int) error {
	r, err := stopReasonArg(reason)
	if err != nil {
		return err
	}
	return m.post(func() { m.sched.setStopReason("", r) })
}

// StartDownload clears the stop reason of one download.
func (m *Manager) StartDownload(id string) error {
	if err := validate.ID(id); err != nil {
		return err
	}
	return m.post(func() { m.sched.setStopReason(id, StopReasonNone) })
}

// StopDownload stops one download with the given reason (or the
// undefined sentinel). StopReasonNone is rejected.
func (m *Manager) StopDownload(id string, reason ...int) error {
	if err := validate.ID(id); err != nil {
		return err
	}
	r, err := stopReasonArg(reason)
	if err != nil {
		return err
	}
	return m.post(func() { m.sched.setStopReason(id, r) })
}

func stopReasonArg(reason []int) (int, error) {
	r := StopReasonUndefined
	if len(reason) > 0 {
		r = reason[0]
	}
	if r == StopReasonNone {
		return 0, apperr.NewWithMessage("download.Stop", apperr.ErrInvalidStopReason, "use Start to resume")
	}
	return r, nil
}

// SetRequirements replaces the precondition set: the current watcher is
// stopped, a fresh one started, and its initial mask fed through the
// usual event path.
func (m *Manager) SetRequirements(req requirements.Flags) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return apperr.ErrReleased
	}
	old := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	watcher := m.newWatcher(req)
	notMet := watcher.Start(m.onWatcherNotMet)

	m.mu.Lock()
	m.watcher = watcher
	m.requirements = req
	m.notMet = notMet
	m.mu.Unlock()

	m.postRequirementsChanged(req, notMet)
	m.sched.post(func() { m.sched.setNotMetRequirements(notMet) })
	return nil
}

// onWatcherNotMet is the watcher callback; it may run on any goroutine.
func (m *Manager) onWatcherNotMet(notMet requirements.Flags) {
	m.mu.Lock()
	if m.released || m.notMet == notMet {
		m.mu.Unlock()
		return
	}
	m.notMet = notMet
	req := m.requirements
	m.mu.Unlock()

	m.postRequirementsChanged(req, notMet)
	m.sched.post(func() { m.sched.setNotMetRequirements(notMet) })
}

// AddListener registers a listener. Registration is safe from listener
// callbacks.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for _, have := range m.listeners {
		if have == l {
			return
		}
	}
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters a listener.
func (m *Manager) RemoveListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	for i, have := range m.listeners {
		if have == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

func (m *Manager) snapshotListeners() []Listener {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	return append([]Listener{}, m.listeners...)
}

// DownloadCount returns the number of unfinished downloads.
func (m *Manager) DownloadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// DownloadStates returns a snapshot of every unfinished download,
// ordered by start time.
func (m *Manager) DownloadStates() []Record {
	m.mu.RLock()
	recs := make([]Record, 0, len(m.states))
	for _, rec := range m.states {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].StartTimeMs != recs[j].StartTimeMs {
			return recs[i].StartTimeMs < recs[j].StartTimeMs
		}
		return recs[i].ID < recs[j].ID
	})
	return recs
}

// DownloadState returns the snapshot of one unfinished download.
func (m *Manager) DownloadState(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.states[id]
	return rec, ok
}

// IsIdle reports whether no worker is active.
func (m *Manager) IsIdle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idle
}

// IsInitialized reports whether the index scan has been loaded.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Requirements returns the current precondition set.
func (m *Manager) Requirements() requirements.Flags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requirements
}

// NotMetRequirements returns the preconditions currently failing.
func (m *Manager) NotMetRequirements() requirements.Flags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notMet
}

// Index returns the underlying record store.
func (m *Manager) Index() Index {
	return m.sched.index
}

// Release cancels every worker, drains both internal loops, and blocks
// until they quit. It is idempotent; concurrent callers all block until
// the drain finishes. No listener is notified after Release returns.
func (m *Manager) Release() {
	m.releaseOnce.Do(func() {
		m.mu.Lock()
		m.released = true
		watcher := m.watcher
		m.watcher = nil
		m.mu.Unlock()

		if watcher != nil {
			watcher.Stop()
		}

		m.sched.loop.post(func() { m.sched.release() })
		m.sched.loop.quit()
		<-m.sched.loop.done

		m.dispatch.quit()
		<-m.dispatch.done

		logger.Log.Info().Msg("download manager released")
		close(m.releaseDone)
	})
	<-m.releaseDone
}

// post forwards a mutation to the scheduler unless released.
func (m *Manager) post(fn func()) error {
	m.mu.RLock()
	released := m.released
	m.mu.RUnlock()
	if released || !m.sched.post(fn) {
		return apperr.ErrReleased
	}
	return nil
}

// Dispatch-side events: each updates the observer snapshot and then
// notifies listeners, in posted order, on the dispatch goroutine.

func (m *Manager) postInitialized() {
	m.dispatch.post(func() {
		m.mu.Lock()
		m.initialized = true
		m.mu.Unlock()
		for _, l := range m.snapshotListeners() {
			l.OnInitialized(m)
		}
	})
}

func (m *Manager) postDownloadChanged(rec Record) {
	m.dispatch.post(func() {
		m.mu.Lock()
		if rec.State.IsTerminal() {
			delete(m.states, rec.ID)
		} else {
			m.states[rec.ID] = rec
		}
		m.mu.Unlock()
		for _, l := range m.snapshotListeners() {
			l.OnDownloadChanged(m, rec)
		}
	})
}

func (m *Manager) postIdleChanged(idle bool) {
	m.dispatch.post(func() {
		m.mu.Lock()
		m.idle = idle
		m.mu.Unlock()
		if !idle {
			return
		}
		for _, l := range m.snapshotListeners() {
			l.OnIdle(m)
		}
	})
}

func (m *Manager) postRequirementsChanged(req, notMet requirements.Flags) {
	m.dispatch.post(func() {
		for _, l := range m.snapshotListeners() {
			l.OnRequirementsChanged(m, req, notMet)
		}
	})
}

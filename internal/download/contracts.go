package download

import (
	"context"

	"offliner/internal/requirements"
)

// Index is the durable store of download records. Implementations are
// only ever called from the manager's scheduler goroutine; they do not
// need to be safe for concurrent use by the manager, though they may be
// read concurrently by other processes' tooling. Errors are logged by
// the manager and never interrupt scheduling.
type Index interface {
	// Record returns the row for id, or nil when absent.
	Record(id string) (*Record, error)
	// Records returns the rows whose state matches any of the given
	// states, in insertion order. No states means every row.
	Records(states ...State) ([]Record, error)
	// Put inserts or replaces a row.
	Put(rec Record) error
	// Remove deletes a row. Removing an absent id is not an error.
	Remove(id string) error
	// SetStopReason updates the stop reason of every non-terminal row.
	SetStopReason(reason int) error
	// SetStopReasonByID updates the stop reason of one non-terminal row.
	SetStopReasonByID(id string, reason int) error
}

// Downloader moves the bytes of a single download. Implementations must
// honor context cancellation promptly; Download must be resumable across
// calls so the retry loop can pick up where an error left off.
type Downloader interface {
	// Download fetches the content, blocking until done or failed.
	Download(ctx context.Context) error
	// Remove deletes the cached content.
	Remove(ctx context.Context) error
	// DownloadedBytes reports fetch progress; it is monotonic within an
	// attempt and is used to reset the retry budget.
	DownloadedBytes() int64
	// Counters returns the current progress snapshot.
	Counters() Counters
	// Filename is the content's display name, when one was learned
	// during the fetch (e.g. from the server). Empty until known.
	Filename() string
}

// DownloaderFactory creates one Downloader per worker.
type DownloaderFactory interface {
	Create(req Request) Downloader
}

// DownloaderFactoryFunc adapts a function to DownloaderFactory.
type DownloaderFactoryFunc func(req Request) Downloader

func (f DownloaderFactoryFunc) Create(req Request) Downloader { return f(req) }

// Listener observes manager events. All callbacks run sequentially on
// the manager's dispatch goroutine, in the order the events occurred.
// Callbacks must not call Release.
type Listener interface {
	// OnInitialized fires once, after the index scan has been loaded.
	OnInitialized(m *Manager)
	// OnDownloadChanged fires for every published record change,
	// including terminal ones.
	OnDownloadChanged(m *Manager, rec Record)
	// OnIdle fires when the manager becomes idle: when the last active
	// worker stops, and once after the startup load if no worker runs.
	OnIdle(m *Manager)
	// OnRequirementsChanged fires when the required set or its not-met
	// subset changes.
	OnRequirementsChanged(m *Manager, req requirements.Flags, notMet requirements.Flags)
}

// Watcher observes host preconditions for the manager.
type Watcher interface {
	// Start returns the current not-met mask and begins reporting
	// changes through onChange.
	Start(onChange func(notMet requirements.Flags)) requirements.Flags
	// Stop halts reporting. No callback fires after Stop returns.
	Stop()
	// Requirements returns the required set being observed.
	Requirements() requirements.Flags
}

// WatcherFactory builds a watcher for a required set; the manager calls
// it again whenever the requirements are replaced.
type WatcherFactory func(required requirements.Flags) Watcher

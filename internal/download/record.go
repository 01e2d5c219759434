package download

import (
	"offliner/internal/logger"
	"offliner/internal/requirements"
)

// State is the lifecycle state of a download.
type State int

const (
	// StateQueued means the download is eligible but waiting for a fetch slot.
	StateQueued State = iota
	// StateStopped means a stop reason or unmet requirement blocks the download.
	StateStopped
	// StateDownloading means a fetch worker is bound to the download.
	StateDownloading
	// StateCompleted is terminal: all bytes are cached.
	StateCompleted
	// StateFailed is terminal: the fetch failed permanently.
	StateFailed
	// StateRemoving means a remove worker is deleting the cached bytes.
	StateRemoving
	// StateRestarting means cached bytes are being deleted before a fresh fetch.
	StateRestarting
	// StateRemoved is terminal: the cached bytes are gone.
	StateRemoved
)

var stateNames = map[State]string{
	StateQueued:      "queued",
	StateStopped:     "stopped",
	StateDownloading: "downloading",
	StateCompleted:   "completed",
	StateFailed:      "failed",
	StateRemoving:    "removing",
	StateRestarting:  "restarting",
	StateRemoved:     "removed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether a download in this state is finished and
// leaves the manager's collection.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateRemoved
}

// FailureReason explains a failed state.
type FailureReason int

const (
	// FailureReasonNone is set for every non-failed state.
	FailureReasonNone FailureReason = iota
	// FailureReasonUnknown is the only failure cause surfaced by fetch workers.
	FailureReasonUnknown
)

func (r FailureReason) String() string {
	if r == FailureReasonUnknown {
		return "unknown"
	}
	return "none"
}

// Stop reasons. Zero means the download may run. StopReasonUndefined is
// the reserved "stopped without a specific reason" sentinel used when a
// stop call names no reason of its own. Application-defined reasons are
// any positive value.
const (
	StopReasonNone      = 0
	StopReasonUndefined = -1
)

// StreamKey addresses one stream inside multiplexed content.
type StreamKey struct {
	Period int `json:"period"`
	Group  int `json:"group"`
	Stream int `json:"stream"`
}

// Request describes content to be downloaded. Merging a request into an
// existing record unions the stream keys and replaces the remaining
// fetch parameters.
type Request struct {
	ID             string      `json:"id"`
	Type           string      `json:"type"`
	URI            string      `json:"uri"`
	CacheKey       string      `json:"cacheKey,omitempty"`
	StreamKeys     []StreamKey `json:"streamKeys,omitempty"`
	CustomMetadata []byte      `json:"customMetadata,omitempty"`
}

// Counters is the transient byte-progress snapshot attached to a record.
type Counters struct {
	BytesDownloaded int64 `json:"bytesDownloaded"`
	ContentLength   int64 `json:"contentLength"` // -1 when unknown
}

// Record is the durable per-id row kept in the index. It is
// rematerialized from the in-memory download on every published change.
type Record struct {
	Request
	State              State              `json:"state"`
	FailureReason      FailureReason      `json:"failureReason"`
	NotMetRequirements requirements.Flags `json:"notMetRequirements"`
	StopReason         int                `json:"stopReason"`
	StartTimeMs        int64              `json:"startTimeMs"`
	UpdateTimeMs       int64              `json:"updateTimeMs"`
	Counters           Counters           `json:"counters"`

	// Filename is the display name learned from the downloader, kept
	// once known so listings survive the worker.
	Filename string `json:"filename,omitempty"`
}

// newRecord builds the row for a first-seen request.
func newRecord(req Request, nowMs int64) Record {
	return Record{
		Request:      req,
		State:        StateQueued,
		StartTimeMs:  nowMs,
		UpdateTimeMs: nowMs,
		Counters:     Counters{ContentLength: -1},
	}
}

// mergeRequest folds a new request into an existing record. Stream keys
// are unioned, the remaining fetch parameters are replaced, and the state
// is re-derived: an in-flight removal becomes a restart, a finished
// record is re-queued, anything else keeps its state.
func mergeRequest(rec Record, req Request, nowMs int64) Record {
	if rec.Type != req.Type {
		logger.Log.Warn().
			Str("id", req.ID).
			Str("old", rec.Type).
			Str("new", req.Type).
			Msg("content type changed by merge")
	}

	merged := rec
	merged.Request = req
	merged.StreamKeys = unionStreamKeys(rec.StreamKeys, req.StreamKeys)

	switch {
	case rec.State == StateRemoving || rec.State == StateRestarting:
		merged.State = StateRestarting
	case rec.State.IsTerminal():
		merged.State = StateQueued
	default:
		merged.State = rec.State
	}
	if merged.State == StateQueued {
		merged.FailureReason = FailureReasonNone
	}
	merged.UpdateTimeMs = nowMs
	return merged
}

// unionStreamKeys keeps the existing order and appends unseen keys. An
// empty key set on either side means "all streams" and wins.
func unionStreamKeys(existing, added []StreamKey) []StreamKey {
	if len(existing) == 0 || len(added) == 0 {
		return nil
	}
	merged := make([]StreamKey, len(existing), len(existing)+len(added))
	copy(merged, existing)
	for _, key := range added {
		seen := false
		for _, have := range merged {
			if have == key {
				seen = true
				break
			}
		}
		if !seen {
			merged = append(merged, key)
		}
	}
	return merged
}

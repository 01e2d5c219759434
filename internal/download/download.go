package download

import (
	"offliner/internal/logger"
	"offliner/internal/requirements"
)

// download is the in-memory state machine for one content id. It is
// owned exclusively by the scheduler goroutine; every method here runs
// on that goroutine. Each completed transition publishes exactly one
// record snapshot (see publish); transitions that delegate to an inner
// transition report whether the inner one already published so the
// outer one can skip its own emission.
type download struct {
	s *scheduler

	record        Record
	state         State
	failureReason FailureReason
	notMet        requirements.Flags
	stopReason    int
}

// newDownload wraps a record with the scheduler-wide requirement mask
// and stop reason; both loaded and freshly added downloads take the
// manager-wide reason at construction.
func newDownload(s *scheduler, rec Record, notMet requirements.Flags, stopReason int) *download {
	return &download{
		s:             s,
		record:        rec,
		state:         rec.State,
		failureReason: rec.FailureReason,
		notMet:        notMet,
		stopReason:    stopReason,
	}
}

func (d *download) id() string { return d.record.ID }

func (d *download) canStart() bool {
	return d.stopReason == StopReasonNone && d.notMet == 0
}

func (d *download) isInRemoveState() bool {
	return d.state == StateRemoving || d.state == StateRestarting
}

// isIdleState reports whether no worker belongs to the download.
func (d *download) isIdleState() bool {
	return d.state != StateDownloading && !d.isInRemoveState()
}

// initialize drives the download from initial into a scheduling state:
// a removal admits its worker and stays put, an eligible download starts
// or queues, and anything else parks as stopped. The resulting record is
// published exactly once even when the state did not change, because
// bootstrapping listeners need the notification.
func (d *download) initialize(initial State) {
	d.state = initial
	switch {
	case d.isInRemoveState():
		d.s.startWorker(d)
	case d.canStart():
		d.applyStartOrQueue()
	default:
		d.state = StateStopped
	}
	d.publish()
}

// addRequest merges a new request and re-initializes from the merged
// state.
func (d *download) addRequest(req Request) {
	d.record = mergeRequest(d.record, req, d.s.nowMs())
	if d.record.State == StateQueued {
		d.failureReason = FailureReasonNone
	}
	d.initialize(d.record.State)
}

func (d *download) remove() {
	d.initialize(StateRemoving)
}

// start re-drives an unfinished download; it is a no-op for stopped
// downloads, which only move through updateStopState.
func (d *download) start() {
	switch {
	case d.state == StateQueued || d.state == StateDownloading:
		d.startOrQueue()
	case d.isInRemoveState():
		d.s.startWorker(d)
	}
}

// setStopReason records the new reason and publishes the record once,
// through updateStopState when that fires a transition of its own.
func (d *download) setStopReason(reason int) {
	if d.stopReason == reason {
		return
	}
	d.stopReason = reason
	if !d.updateStopState() {
		d.publish()
	}
}

// setNotMetRequirements mirrors setStopReason for the precondition mask.
func (d *download) setNotMetRequirements(notMet requirements.Flags) {
	if d.notMet == notMet {
		return
	}
	d.notMet = notMet
	if !d.updateStopState() {
		d.publish()
	}
}

// updateStopState moves the download across the stopped boundary after a
// precondition or stop-reason change. It reports whether it published.
func (d *download) updateStopState() bool {
	if d.canStart() {
		if d.state == StateStopped {
			return d.startOrQueue()
		}
		return false
	}
	if d.state == StateDownloading || d.state == StateQueued {
		d.s.cancelWorker(d.id())
		return d.setState(StateStopped)
	}
	return false
}

// startOrQueue admits the download and publishes if the scheduling state
// changed, reporting whether it did.
func (d *download) startOrQueue() bool {
	prev := d.state
	d.applyStartOrQueue()
	if d.state == prev {
		return false
	}
	d.publish()
	return true
}

// applyStartOrQueue admits the download and sets the resulting state
// without publishing. Must not be called in a remove state.
func (d *download) applyStartOrQueue() {
	switch d.s.startWorker(d) {
	case admitTooManyDownloads:
		d.state = StateQueued
	case admitWaitRemovalToFinish:
		// Cannot happen outside a remove state; a remove worker never
		// outlives its download's remove state.
		logger.Log.Error().Str("id", d.id()).Msg("unexpected removal wait during start")
	default:
		d.state = StateDownloading
	}
}

// onWorkerStopped is the completion transition. A canceled worker is
// re-admitted immediately so the successor (fetch or remove, depending
// on the current state) can start; everything else resolves the state
// the worker was serving.
func (d *download) onWorkerStopped(canceled bool, err error) {
	if d.isIdleState() {
		// Spurious: the state machine already moved on.
		return
	}
	if canceled {
		if d.isInRemoveState() {
			d.s.startWorker(d)
			return
		}
		if d.s.startWorker(d) == admitTooManyDownloads {
			d.setState(StateQueued)
		}
		return
	}
	switch d.state {
	case StateRestarting:
		d.initialize(StateQueued)
	case StateRemoving:
		d.setState(StateRemoved)
	default: // StateDownloading
		if err != nil {
			d.failureReason = FailureReasonUnknown
			d.setState(StateFailed)
		} else {
			d.setState(StateCompleted)
		}
	}
}

// setState publishes iff the state changed, and reports whether it did.
func (d *download) setState(next State) bool {
	if d.state == next {
		return false
	}
	d.state = next
	d.publish()
	return true
}

// publish rematerializes the record from the in-memory fields and hands
// it to the scheduler for persistence and listener dispatch.
func (d *download) publish() {
	rec := d.record
	rec.State = d.state
	rec.FailureReason = d.failureReason
	rec.NotMetRequirements = d.notMet
	rec.StopReason = d.stopReason
	rec.UpdateTimeMs = d.s.nowMs()
	if counters, filename, ok := d.s.liveProgress(d.id()); ok {
		rec.Counters = counters
		if filename != "" {
			rec.Filename = filename
		}
	}
	d.record = rec

	logger.Log.Debug().
		Str("id", rec.ID).
		Stringer("state", rec.State).
		Msg("download changed")
	d.s.onDownloadChanged(d, rec)
}

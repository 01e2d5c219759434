package download

import (
	"time"

	"offliner/internal/logger"
	"offliner/internal/requirements"
)

// admitResult is the scheduler's answer to a worker request.
type admitResult int

const (
	// admitSucceeded: a fresh worker was created and bound.
	admitSucceeded admitResult = iota
	// admitWaitRemovalToFinish: a remove worker is still running; the
	// caller keeps its state and retries on that worker's completion.
	admitWaitRemovalToFinish
	// admitWaitDownloadCancellation: the existing fetch worker was
	// canceled; its completion event re-drives the state machine.
	admitWaitDownloadCancellation
	// admitTooManyDownloads: every fetch slot is taken.
	admitTooManyDownloads
)

// scheduler owns the download collection, the active-worker table, and
// all index persistence. Everything here runs on a single goroutine fed
// by an unbounded FIFO of closures; workers and the public manager only
// ever post events.
type scheduler struct {
	m       *Manager
	loop    *eventLoop
	index   Index
	factory DownloaderFactory

	maxSimultaneous int
	minRetryCount   int

	downloads    []*download // insertion-ordered; slot grants follow this order
	active       map[string]*worker
	simultaneous int // active fetch workers; remove workers are not counted
	notMet       requirements.Flags
	stopReason   int
	idle         bool
	released     bool
}

func newScheduler(m *Manager, index Index, factory DownloaderFactory, maxSimultaneous, minRetryCount int, notMet requirements.Flags) *scheduler {
	return &scheduler{
		m:               m,
		loop:            newEventLoop(),
		index:           index,
		factory:         factory,
		maxSimultaneous: maxSimultaneous,
		minRetryCount:   minRetryCount,
		active:          make(map[string]*worker),
		notMet:          notMet,
	}
}

// post enqueues a scheduler event. Every event re-evaluates the idle
// edge after running; events arriving after release are dropped.
func (s *scheduler) post(fn func()) bool {
	return s.loop.post(func() {
		if s.released {
			return
		}
		fn()
		s.evaluateIdle()
	})
}

func (s *scheduler) nowMs() int64 {
	return time.Now().UnixMilli()
}

func (s *scheduler) find(id string) *download {
	for _, d := range s.downloads {
		if d.id() == id {
			return d
		}
	}
	return nil
}

func (s *scheduler) removeFromList(target *download) {
	for i, d := range s.downloads {
		if d == target {
			s.downloads = append(s.downloads[:i], s.downloads[i+1:]...)
			return
		}
	}
}

// load scans the index for unfinished records, announces initialization,
// and then re-drives every surviving download through initialize in scan
// order. Stopped records are re-published on purpose: that is the
// bootstrap notification listeners rely on.
func (s *scheduler) load() {
	recs, err := s.index.Records(StateQueued, StateStopped, StateDownloading, StateRemoving, StateRestarting)
	if err != nil {
		logger.Log.Error().Err(err).Msg("index scan failed, starting empty")
	}
	for _, rec := range recs {
		s.downloads = append(s.downloads, newDownload(s, rec, s.notMet, s.stopReason))
	}
	logger.Log.Info().Int("count", len(recs)).Msg("downloads loaded")

	s.m.postInitialized()
	for _, d := range append([]*download{}, s.downloads...) {
		d.initialize(d.record.State)
	}
}

func (s *scheduler) addDownload(req Request) {
	if d := s.find(req.ID); d != nil {
		d.addRequest(req)
		return
	}

	now := s.nowMs()
	rec, err := s.index.Record(req.ID)
	if err != nil {
		logger.Log.Error().Err(err).Str("id", req.ID).Msg("index read failed")
	}
	var merged Record
	if rec != nil {
		merged = mergeRequest(*rec, req, now)
	} else {
		merged = newRecord(req, now)
	}

	d := newDownload(s, merged, s.notMet, s.stopReason)
	s.downloads = append(s.downloads, d)
	d.initialize(merged.State)
}

func (s *scheduler) removeDownload(id string) {
	if d := s.find(id); d != nil {
		d.remove()
		return
	}

	rec, err := s.index.Record(id)
	if err != nil {
		logger.Log.Error().Err(err).Str("id", id).Msg("index read failed")
	}
	if rec == nil {
		logger.Log.Debug().Str("id", id).Msg("remove of unknown download ignored")
		return
	}
	rec.State = StateRemoving
	d := newDownload(s, *rec, s.notMet, s.stopReason)
	s.downloads = append(s.downloads, d)
	d.initialize(StateRemoving)
}

// setStopReason applies a stop reason to one download, or, with an empty
// id, to the manager as a whole: the global field used by new arrivals,
// every live download, and every persisted non-terminal row.
func (s *scheduler) setStopReason(id string, reason int) {
	if id == "" {
		s.stopReason = reason
		if err := s.index.SetStopReason(reason); err != nil {
			logger.Log.Error().Err(err).Msg("index stop-reason update failed")
		}
		for _, d := range append([]*download{}, s.downloads...) {
			d.setStopReason(reason)
		}
		return
	}
	if d := s.find(id); d != nil {
		d.setStopReason(reason)
		return
	}
	if err := s.index.SetStopReasonByID(id, reason); err != nil {
		logger.Log.Error().Err(err).Str("id", id).Msg("index stop-reason update failed")
	}
}

func (s *scheduler) setNotMetRequirements(notMet requirements.Flags) {
	if s.notMet == notMet {
		return
	}
	s.notMet = notMet
	for _, d := range append([]*download{}, s.downloads...) {
		d.setNotMetRequirements(notMet)
	}
}

// startWorker is the admission function. It binds at most one worker per
// download and counts only fetch workers against the cap; removals must
// never starve behind pending fetches.
func (s *scheduler) startWorker(d *download) admitResult {
	id := d.id()
	if w, ok := s.active[id]; ok {
		if w.isRemove {
			return admitWaitRemovalToFinish
		}
		w.cancel()
		return admitWaitDownloadCancellation
	}

	isRemove := d.isInRemoveState()
	if !isRemove && s.simultaneous == s.maxSimultaneous {
		return admitTooManyDownloads
	}

	w := newWorker(d.record.Request, s.factory.Create(d.record.Request), isRemove, s.minRetryCount, s.postWorkerStopped)
	s.active[id] = w
	if !isRemove {
		s.simultaneous++
	}
	logger.Log.Debug().
		Str("id", id).
		Bool("remove", isRemove).
		Int("simultaneous", s.simultaneous).
		Msg("worker started")
	w.start()
	return admitSucceeded
}

func (s *scheduler) cancelWorker(id string) {
	if w, ok := s.active[id]; ok {
		w.cancel()
	}
}

// postWorkerStopped is invoked from the worker goroutine; the single
// completion event is the worker's only synchronization with the
// scheduler.
func (s *scheduler) postWorkerStopped(w *worker, finalErr error) {
	s.post(func() { s.onWorkerStopped(w, finalErr) })
}

func (s *scheduler) onWorkerStopped(w *worker, finalErr error) {
	id := w.request.ID
	if s.active[id] != w {
		return
	}
	delete(s.active, id)

	slotFreed := false
	if !w.isRemove {
		s.simultaneous--
		slotFreed = true
	}
	if finalErr != nil && !w.canceled() {
		logger.Log.Warn().
			Str("id", id).
			Bool("remove", w.isRemove).
			Err(finalErr).
			Msg("worker stopped with error")
	}

	if d := s.find(id); d != nil {
		if !w.isRemove {
			// Final progress and the learned display name outlive the
			// worker; the terminal publish carries them.
			d.record.Counters = w.downloader.Counters()
			if name := w.downloader.Filename(); name != "" {
				d.record.Filename = name
			}
		}
		d.onWorkerStopped(w.canceled(), finalErr)
	}

	if slotFreed {
		// A fetch slot opened: sweep for waiting downloads in insertion
		// order. Downloads that already hold a worker are skipped so an
		// open slot never preempts a healthy in-flight fetch.
		for _, d := range append([]*download{}, s.downloads...) {
			if s.simultaneous == s.maxSimultaneous {
				break
			}
			if _, running := s.active[d.id()]; running {
				continue
			}
			d.start()
		}
	}
}

// onDownloadChanged commits a published record and forwards it to the
// dispatch goroutine. A removed record is deleted rather than stored;
// completed and failed records stay in the index. Every terminal
// download leaves the collection.
func (s *scheduler) onDownloadChanged(d *download, rec Record) {
	if rec.State == StateRemoved {
		if err := s.index.Remove(rec.ID); err != nil {
			logger.Log.Error().Err(err).Str("id", rec.ID).Msg("index delete failed")
		}
	} else if err := s.index.Put(rec); err != nil {
		logger.Log.Error().Err(err).Str("id", rec.ID).Msg("index write failed")
	}
	if rec.State.IsTerminal() {
		s.removeFromList(d)
	}
	s.m.postDownloadChanged(rec)
}

// liveProgress snapshots the progress and the learned display name of
// the download's fetch worker.
func (s *scheduler) liveProgress(id string) (Counters, string, bool) {
	w, ok := s.active[id]
	if !ok || w.isRemove {
		return Counters{}, "", false
	}
	return w.downloader.Counters(), w.downloader.Filename(), true
}

// evaluateIdle publishes the idle edge: listeners hear only the rising
// edge, the snapshot tracks both.
func (s *scheduler) evaluateIdle() {
	idle := len(s.active) == 0
	if idle == s.idle {
		return
	}
	s.idle = idle
	s.m.postIdleChanged(idle)
}

// release cancels every worker and marks the scheduler dead; completion
// events that straggle in afterwards are dropped by post.
func (s *scheduler) release() {
	for _, w := range s.active {
		w.cancel()
	}
	s.released = true
	logger.Log.Info().Int("canceled", len(s.active)).Msg("scheduler released")
}

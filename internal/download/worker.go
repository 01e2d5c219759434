package download

import (
	"context"
	"sync/atomic"
	"time"

	"offliner/internal/logger"
)

// maxRetryDelay caps the linear backoff between fetch attempts.
const maxRetryDelay = 5 * time.Second

// worker runs one downloader on its own goroutine, in either fetch or
// remove mode, and reports a single completion to the scheduler.
// Cancellation is cooperative: the context interrupts the downloader and
// the backoff sleep, and a canceled worker always completes without an
// error.
type worker struct {
	request       Request
	downloader    Downloader
	isRemove      bool
	minRetryCount int
	onStopped     func(w *worker, finalErr error)

	ctx        context.Context
	cancelCtx  context.CancelFunc
	isCanceled atomic.Bool
}

func newWorker(req Request, dl Downloader, isRemove bool, minRetryCount int, onStopped func(*worker, error)) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		request:       req,
		downloader:    dl,
		isRemove:      isRemove,
		minRetryCount: minRetryCount,
		onStopped:     onStopped,
		ctx:           ctx,
		cancelCtx:     cancel,
	}
}

func (w *worker) start() {
	go w.run()
}

// cancel is idempotent and safe from any goroutine.
func (w *worker) cancel() {
	if w.isCanceled.CompareAndSwap(false, true) {
		w.cancelCtx()
	}
}

func (w *worker) canceled() bool {
	return w.isCanceled.Load()
}

func (w *worker) run() {
	var finalErr error
	if w.isRemove {
		finalErr = w.downloader.Remove(w.ctx)
	} else {
		finalErr = w.fetch()
	}
	if w.canceled() {
		finalErr = nil
	}
	w.cancelCtx()
	w.onStopped(w, finalErr)
}

// fetch retries transient errors with linear backoff. Progress since the
// last error resets the budget; once the budget is spent the error is
// final.
func (w *worker) fetch() error {
	errorCount := 0
	errorPosition := int64(-1)
	for !w.canceled() {
		err := w.downloader.Download(w.ctx)
		if err == nil {
			return nil
		}
		if w.canceled() {
			return nil
		}
		if bytes := w.downloader.DownloadedBytes(); bytes > errorPosition {
			errorPosition = bytes
			errorCount = 0
		}
		errorCount++
		if errorCount > w.minRetryCount {
			return err
		}
		logger.Log.Debug().
			Str("id", w.request.ID).
			Int("attempt", errorCount).
			Err(err).
			Msg("fetch error, retrying")
		select {
		case <-time.After(retryDelay(errorCount)):
		case <-w.ctx.Done():
			return nil
		}
	}
	return nil
}

func retryDelay(errorCount int) time.Duration {
	delay := time.Duration(errorCount-1) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

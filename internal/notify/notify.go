// Package notify raises desktop notifications for finished downloads.
package notify

import (
	"fmt"

	toast "git.sr.ht/~jackmordaunt/go-toast/v2"

	"offliner/internal/download"
	"offliner/internal/logger"
	"offliner/internal/requirements"
)

// Listener raises a toast when a download reaches a terminal state. It
// pushes from a separate goroutine so a slow notification daemon never
// stalls event dispatch.
type Listener struct{}

// New creates the notification listener.
func New() *Listener {
	return &Listener{}
}

// OnDownloadChanged implements the manager listener.
func (l *Listener) OnDownloadChanged(m *download.Manager, rec download.Record) {
	var title string
	switch rec.State {
	case download.StateCompleted:
		title = "Download complete"
	case download.StateFailed:
		title = "Download failed"
	default:
		return
	}

	body := fmt.Sprintf("%s (%s)", rec.ID, rec.URI)
	if rec.Filename != "" {
		body = rec.Filename
	}
	n := toast.Notification{
		AppID: "Offliner",
		Title: title,
		Body:  body,
	}
	go func() {
		if err := n.Push(); err != nil {
			logger.Log.Warn().Err(err).Str("id", rec.ID).Msg("failed to send native notification")
		}
	}()
}

// OnInitialized implements the manager listener.
func (l *Listener) OnInitialized(m *download.Manager) {}

// OnIdle implements the manager listener.
func (l *Listener) OnIdle(m *download.Manager) {}

// OnRequirementsChanged implements the manager listener.
func (l *Listener) OnRequirementsChanged(m *download.Manager, req, notMet requirements.Flags) {}

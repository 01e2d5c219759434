package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	apperr "offliner/internal/errors"
)

// daemonLock pins one daemon to a data directory. The lock file carries
// the holder's pid so a losing process can say who owns the directory.
type daemonLock struct {
	flock *flock.Flock
	path  string
}

// acquireLock takes the data-directory lock and records this process as
// its holder. When another daemon owns the directory, the error wraps
// ErrAlreadyRunning and names the holding pid when one is readable.
func acquireLock(dataDir string) (*daemonLock, error) {
	lockPath := filepath.Join(dataDir, "offliner.lock")
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock: %w", err)
	}
	if !locked {
		msg := "data directory " + dataDir + " is in use"
		if pid, ok := holderPid(lockPath); ok {
			msg = fmt.Sprintf("data directory %s is in use by pid %d", dataDir, pid)
		}
		return nil, apperr.NewWithMessage("cmd.acquireLock", apperr.ErrAlreadyRunning, msg)
	}

	// Best-effort holder marker; contention reporting degrades without it.
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("failed to record lock holder: %w", err)
	}

	return &daemonLock{flock: fileLock, path: lockPath}, nil
}

// release gives the lock back and clears the holder marker.
func (l *daemonLock) release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	os.WriteFile(l.path, nil, 0644)
	return l.flock.Unlock()
}

// holderPid reads the pid recorded by the current holder.
func holderPid(lockPath string) (int, bool) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

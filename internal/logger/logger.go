package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log is the global application logger.
var Log zerolog.Logger

// Fallbacks when the configuration carries no usable rotation values.
const (
	fallbackMaxSizeMB  = 10
	fallbackMaxBackups = 5
)

func init() {
	// Usable before Init for early startup paths and tests.
	Log = zerolog.New(io.Discard)
}

// Init initializes the logger with rotating file output in dataDir/logs/.
// maxSizeMB and maxBackups come from the daemon configuration; values
// below 1 select the fallbacks.
func Init(dataDir string, maxSizeMB, maxBackups int) error {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	if maxSizeMB < 1 {
		maxSizeMB = fallbackMaxSizeMB
	}
	if maxBackups < 1 {
		maxBackups = fallbackMaxBackups
	}

	writer, err := openRotatingFile(filepath.Join(logDir, "offliner.log"), int64(maxSizeMB)*1024*1024, maxBackups)
	if err != nil {
		return err
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logLevel := defaultLevel
	if os.Getenv("OFFLINER_DEBUG") == "true" || os.Getenv("OFFLINER_DEBUG") == "1" {
		logLevel = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	Log = zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	Log.Info().
		Str("logPath", writer.path).
		Int("maxSizeMB", maxSizeMB).
		Int("maxBackups", maxBackups).
		Msg("logger initialized")
	return nil
}

// GetLogPath returns the log directory path.
func GetLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// rotatingFile is an io.Writer with numbered log rotation: when the
// current file exceeds maxSize it becomes <path>.1, existing backups
// shift up, and anything beyond maxBackups falls off the end.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	size       int64
}

func openRotatingFile(path string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	w := &rotatingFile{
		path:       path,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingFile) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w.file = f
	w.size = info.Size()
	return nil
}

func (w *rotatingFile) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			// If rotation fails, continue writing to the current file
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err = w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate shifts the numbered backups up by one and restarts the live
// file. The oldest backup is dropped first so the chain of renames
// never collides.
func (w *rotatingFile) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	os.Remove(w.backupPath(w.maxBackups))
	for i := w.maxBackups - 1; i >= 1; i-- {
		from := w.backupPath(i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, w.backupPath(i+1)); err != nil {
			w.open()
			return err
		}
	}

	if err := os.Rename(w.path, w.backupPath(1)); err != nil {
		// If the rename fails, try to reopen the original
		w.open()
		return err
	}

	return w.open()
}

func (w *rotatingFile) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

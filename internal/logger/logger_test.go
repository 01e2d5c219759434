package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFile_ShiftsNumberedBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := openRotatingFile(path, 32, 2)
	if err != nil {
		t.Fatalf("openRotatingFile() error: %v", err)
	}

	line := strings.Repeat("a", 30) + "\n"
	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	// Four oversized writes: live file plus two backups, nothing older.
	for _, name := range []string{"app.log", "app.log.1", "app.log.2"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing after rotation: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "app.log.3")); !os.IsNotExist(err) {
		t.Error("rotation must drop backups beyond the configured count")
	}
}

func TestRotatingFile_KeepsWritingWhenSmall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	w, err := openRotatingFile(path, 1024, 2)
	if err != nil {
		t.Fatalf("openRotatingFile() error: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte("short line\n")); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup expected below the size threshold")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("live log missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("live log must contain the written lines")
	}
}

func TestInit_UsesFallbacksForInvalidValues(t *testing.T) {
	dir := t.TempDir()

	if err := Init(dir, 0, -1); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "offliner.log")); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

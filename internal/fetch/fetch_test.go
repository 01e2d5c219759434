package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"offliner/internal/download"
)

func testRequest(uri string) download.Request {
	return download.Request{ID: "vid-1", Type: "progressive", URI: uri, CacheKey: "vid-1.mp4"}
}

func TestDownload_FetchesFullContent(t *testing.T) {
	content := []byte(strings.Repeat("offliner", 1024))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "vid.mp4", time.Now(), strings.NewReader(string(content)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFactory(dir, 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	if err := dl.Download(context.Background()); err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "vid-1.mp4"))
	if err != nil {
		t.Fatalf("cached file missing: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("cached %d bytes, want %d matching bytes", len(got), len(content))
	}
	if dl.DownloadedBytes() != int64(len(content)) {
		t.Errorf("DownloadedBytes() = %d, want %d", dl.DownloadedBytes(), len(content))
	}

	counters := dl.Counters()
	if counters.BytesDownloaded != int64(len(content)) {
		t.Errorf("Counters().BytesDownloaded = %d, want %d", counters.BytesDownloaded, len(content))
	}
}

func TestDownload_ResumesFromPartFile(t *testing.T) {
	content := []byte(strings.Repeat("0123456789", 2048))
	var sawRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRange = r.Header.Get("Range")
		http.ServeContent(w, r, "vid.mp4", time.Unix(0, 0), strings.NewReader(string(content)))
	}))
	defer srv.Close()

	dir := t.TempDir()
	half := len(content) / 2
	if err := os.WriteFile(filepath.Join(dir, "vid-1.mp4"+partSuffix), content[:half], 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFactory(dir, 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	if err := dl.Download(context.Background()); err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if want := "bytes=10240-"; sawRange != want {
		t.Errorf("Range header = %q, want %q", sawRange, want)
	}
	got, err := os.ReadFile(filepath.Join(dir, "vid-1.mp4"))
	if err != nil {
		t.Fatalf("cached file missing: %v", err)
	}
	if string(got) != string(content) {
		t.Error("resumed file does not match the source content")
	}
}

func TestDownload_LearnsFilenameFromContentDisposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="Movie Night.mp4"`)
		http.ServeContent(w, r, "vid.mp4", time.Now(), strings.NewReader("content"))
	}))
	defer srv.Close()

	f := NewFactory(t.TempDir(), 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	if err := dl.Download(context.Background()); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if got := dl.Filename(); got != "Movie Night.mp4" {
		t.Errorf("Filename() = %q, want the Content-Disposition name", got)
	}
}

func TestDownload_NoContentDispositionLeavesFilenameEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "vid.mp4", time.Now(), strings.NewReader("content"))
	}))
	defer srv.Close()

	f := NewFactory(t.TempDir(), 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	if err := dl.Download(context.Background()); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if got := dl.Filename(); got != "" {
		t.Errorf("Filename() = %q, want empty without Content-Disposition", got)
	}
}

func TestDownload_AlreadyCachedSkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a fully cached download")
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vid-1.mp4"), []byte("done"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFactory(dir, 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	if err := dl.Download(context.Background()); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if dl.DownloadedBytes() != 4 {
		t.Errorf("DownloadedBytes() = %d, want size on disk", dl.DownloadedBytes())
	}
}

func TestDownload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFactory(t.TempDir(), 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	if err := dl.Download(context.Background()); err == nil {
		t.Fatal("Download() must fail on a 403")
	}
}

func TestDownload_HonorsContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := NewFactory(t.TempDir(), 0)
	dl := f.Create(testRequest(srv.URL + "/vid.mp4"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- dl.Download(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("canceled Download() must return an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Download() ignored context cancellation")
	}
}

func TestRemove_DeletesCompleteAndPartialFiles(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "vid-1.mp4")
	if err := os.WriteFile(final, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(final+partSuffix, []byte("part"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFactory(dir, 0)
	dl := f.Create(testRequest("https://example.com/vid.mp4"))

	if err := dl.Remove(context.Background()); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Error("final file still present after Remove")
	}
	if _, err := os.Stat(final + partSuffix); !os.IsNotExist(err) {
		t.Error("part file still present after Remove")
	}

	if err := dl.Remove(context.Background()); err != nil {
		t.Errorf("second Remove() error: %v, want nil", err)
	}
}

func TestCachePath_SanitizesUnsafeNames(t *testing.T) {
	f := NewFactory(t.TempDir(), 0)
	req := download.Request{ID: "a/b:c", URI: "https://example.com/x"}
	d := f.Create(req).(*httpDownloader)

	name := filepath.Base(d.cachePath())
	if strings.ContainsAny(name, `/\:`) {
		t.Errorf("cachePath basename %q still contains unsafe characters", name)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		value     string
		wantStart int64
		wantTotal int64
		wantErr   bool
	}{
		{"bytes 100-199/1000", 100, 1000, false},
		{"bytes 0-99/*", 0, -1, false},
		{"bytes */1000", 0, 0, true},
		{"items 0-1/2", 0, 0, true},
		{"", 0, 0, true},
	}

	for _, tt := range tests {
		start, total, err := parseContentRange(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseContentRange(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if start != tt.wantStart || total != tt.wantTotal {
			t.Errorf("parseContentRange(%q) = %d,%d, want %d,%d", tt.value, start, total, tt.wantStart, tt.wantTotal)
		}
	}
}

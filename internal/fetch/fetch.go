// Package fetch is the HTTP downloader bound to fetch and remove
// workers: a resumable ranged GET into the cache directory, shaped by a
// shared rate limiter.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vfaronov/httpheader"
	"golang.org/x/time/rate"

	"offliner/internal/download"
)

const (
	// bufferSize for the copy loop; also the rate-limiter charge unit.
	bufferSize = 32 * 1024

	// partSuffix marks files still being fetched.
	partSuffix = ".part"

	userAgent = "offliner/1.0"
)

// unsafeFilenameChars matches characters not allowed in cache filenames.
var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Factory creates one HTTP downloader per worker. A single Factory (and
// its rate limiter) is shared by every worker of a manager.
type Factory struct {
	client   *http.Client
	cacheDir string
	limiter  *rate.Limiter // nil means unlimited
}

// NewFactory builds a factory writing into cacheDir.
// rateLimitBytesPerSec of 0 disables shaping.
func NewFactory(cacheDir string, rateLimitBytesPerSec int) *Factory {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // raw bytes; lengths must add up for resume
	}

	var limiter *rate.Limiter
	if rateLimitBytesPerSec > 0 {
		// Burst must cover one copy-loop charge or WaitN can never succeed.
		burst := rateLimitBytesPerSec
		if burst < bufferSize {
			burst = bufferSize
		}
		limiter = rate.NewLimiter(rate.Limit(rateLimitBytesPerSec), burst)
	}

	return &Factory{
		client:   &http.Client{Transport: transport},
		cacheDir: cacheDir,
		limiter:  limiter,
	}
}

// Create implements the downloader-factory contract.
func (f *Factory) Create(req download.Request) download.Downloader {
	d := &httpDownloader{factory: f, req: req}
	d.contentLength.Store(-1)
	return d
}

// httpDownloader fetches one request. DownloadedBytes is monotonic
// within an attempt because resumed attempts start from the bytes
// already on disk.
type httpDownloader struct {
	factory *Factory
	req     download.Request

	bytesDownloaded atomic.Int64
	contentLength   atomic.Int64 // -1 until the response reveals it
	filename        atomic.Value // string; server-provided display name
}

// cachePath returns the final file for the request, keyed by cacheKey
// and falling back to the id.
func (d *httpDownloader) cachePath() string {
	name := d.req.CacheKey
	if name == "" {
		name = d.req.ID
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	return filepath.Join(d.factory.cacheDir, name)
}

// Download implements the downloader contract: fetch into a .part file,
// resuming from its current size, and rename into place when complete.
func (d *httpDownloader) Download(ctx context.Context) error {
	final := d.cachePath()
	part := final + partSuffix

	if info, err := os.Stat(final); err == nil {
		// Already cached from an earlier attempt.
		d.bytesDownloaded.Store(info.Size())
		d.contentLength.Store(info.Size())
		return nil
	}

	if err := os.MkdirAll(d.factory.cacheDir, 0755); err != nil {
		return err
	}

	var offset int64
	if info, err := os.Stat(part); err == nil {
		offset = info.Size()
	}
	d.bytesDownloaded.Store(offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.req.URI, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.factory.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the range; start over.
		offset = 0
		d.bytesDownloaded.Store(0)
		d.contentLength.Store(resp.ContentLength)
	case http.StatusPartialContent:
		start, total, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return err
		}
		if start != offset {
			return fmt.Errorf("server resumed at %d, wanted %d", start, offset)
		}
		d.contentLength.Store(total)
	default:
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	// The server's Content-Disposition names the content; the manager
	// publishes it with the record so listings show a real title.
	if _, name, err := httpheader.ContentDisposition(resp.Header); err == nil && name != "" {
		d.filename.Store(filepath.Base(name))
	}

	file, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if offset == 0 {
		if err := file.Truncate(0); err != nil {
			file.Close()
			return err
		}
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return err
	}

	if err := d.copyBody(ctx, file, resp.Body); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(part, final)
}

func (d *httpDownloader) copyBody(ctx context.Context, file *os.File, body io.Reader) error {
	buf := make([]byte, bufferSize)
	for {
		if d.factory.limiter != nil {
			if err := d.factory.limiter.WaitN(ctx, bufferSize); err != nil {
				return err
			}
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			d.bytesDownloaded.Add(int64(n))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Remove deletes the cached bytes, complete or partial.
func (d *httpDownloader) Remove(ctx context.Context) error {
	final := d.cachePath()
	var firstErr error
	for _, path := range []string{final, final + partSuffix} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DownloadedBytes implements the downloader contract.
func (d *httpDownloader) DownloadedBytes() int64 {
	return d.bytesDownloaded.Load()
}

// Counters implements the downloader contract.
func (d *httpDownloader) Counters() download.Counters {
	return download.Counters{
		BytesDownloaded: d.bytesDownloaded.Load(),
		ContentLength:   d.contentLength.Load(),
	}
}

// Filename implements the downloader contract.
func (d *httpDownloader) Filename() string {
	name, _ := d.filename.Load().(string)
	return name
}

// parseContentRange extracts the start offset and complete length from a
// "bytes a-b/c" header; the length is -1 when the server reports "*".
func parseContentRange(value string) (start, total int64, err error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, 0, fmt.Errorf("unparseable Content-Range %q", value)
	}
	rest := strings.TrimPrefix(value, "bytes ")
	rangePart, totalPart, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, fmt.Errorf("unparseable Content-Range %q", value)
	}
	startStr, _, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, fmt.Errorf("unparseable Content-Range %q", value)
	}
	if _, err := fmt.Sscanf(startStr, "%d", &start); err != nil {
		return 0, 0, fmt.Errorf("unparseable Content-Range %q", value)
	}
	total = -1
	if totalPart != "*" {
		if _, err := fmt.Sscanf(totalPart, "%d", &total); err != nil {
			return 0, 0, fmt.Errorf("unparseable Content-Range %q", value)
		}
	}
	return start, total, nil
}

// Package staticfile implements the safe path resolution, MIME lookup,
// conditional-GET evaluation, and LRU-cached body serving of spec.md §4.6,
// grounded on shockwave's sendfile integration and bolt/core/responses.go's
// style of building a response from a handful of well-known fields.
package staticfile

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/uvhttp/pkg/uvhttp/cache"
	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
)

var (
	ErrForbidden = errors.New("staticfile: path escapes root or is unreadable")
	ErrNotFound  = errors.New("staticfile: not a regular file")
)

// SendFileThreshold is the file size at or above which Responder prefers
// the zero-copy sendfile path (only ever taken when TLS is not active).
const SendFileThreshold = 1 << 20 // 1 MiB

// Responder serves files from a single root directory.
type Responder struct {
	Root  string
	Cache *cache.Cache

	// SendFileThreshold overrides the package default when non-zero.
	SendFileThreshold int64
}

// New returns a Responder rooted at root, backed by an LRU cache bounded
// by maxBytes/maxEntries/ttl (see cache.New).
func New(root string, maxBytes int64, maxEntries int, ttl time.Duration) *Responder {
	return &Responder{Root: root, Cache: cache.New(maxBytes, maxEntries, ttl)}
}

// ResolvePath safely joins the responder's root with a request path,
// requiring a leading '/' (the path is taken relative to root), rejecting
// ".." segments, and rejecting any resolution that escapes root
// (spec.md §4.6).
func (r *Responder) ResolvePath(requestPath string) (string, error) {
	if requestPath == "" || requestPath[0] != '/' {
		return "", ErrForbidden
	}
	if strings.Contains(requestPath, "..") {
		return "", ErrForbidden
	}
	clean := filepath.Clean(requestPath)
	full := filepath.Join(r.Root, clean)

	rootAbs, err := filepath.Abs(r.Root)
	if err != nil {
		return "", ErrForbidden
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", ErrForbidden
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(filepath.Separator)) {
		return "", ErrForbidden
	}
	return fullAbs, nil
}

// etagFor computes the `"<mtime>-<size>"` quoted ETag spec.md §4.6 defines.
func etagFor(mtime time.Time, size int64) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%d-%d", mtime.Unix(), size))
}

// Serve resolves requestPath under the responder's root, evaluates
// conditional-GET headers, and populates resp accordingly: 403/404 on
// resolve failure, 304 on a matching conditional request, or 200 with the
// cached (or freshly-read) body. When the body is at least
// sendFileThreshold, resp.BodyFilePath is set so pkg/uvhttp/conn can take
// the zero-copy sendfile path instead of writing resp.Body directly. Serve
// does not look at TLS; WriteBody falls back to an ordinary Write when the
// connection is not a plain TCP socket.
func (r *Responder) Serve(requestPath, ifNoneMatch, ifModifiedSince string, resp *http11.Response) error {
	path, err := r.ResolvePath(requestPath)
	if err != nil {
		resp.SetStatus(403)
		resp.SetBody([]byte("Forbidden"))
		return nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		resp.SetStatus(404)
		resp.SetBody([]byte("Not Found"))
		return nil
	}

	mtime := info.ModTime()
	etag := etagFor(mtime, info.Size())
	lastModified := mtime.UTC().Format(http.TimeFormat)

	if ifNoneMatch != "" && ifNoneMatch == etag {
		writeNotModified(resp, etag, lastModified)
		return nil
	}
	if ifModifiedSince != "" {
		if since, err := time.Parse(http.TimeFormat, ifModifiedSince); err == nil {
			if !mtime.After(since) {
				writeNotModified(resp, etag, lastModified)
				return nil
			}
		}
	}

	body, err := r.load(path, info)
	if err != nil {
		resp.SetStatus(500)
		resp.SetBody([]byte("Internal Server Error"))
		return nil
	}

	resp.SetStatus(200)
	resp.SetHeader("ETag", etag)
	resp.SetHeader("Last-Modified", lastModified)
	resp.SetHeader("Content-Type", mimeFor(path))
	resp.SetBody(body)
	if int64(len(body)) >= r.sendFileThreshold() {
		resp.BodyFilePath = path
	}
	return nil
}

// sendFileThreshold returns the responder's configured sendfile threshold,
// falling back to the package default.
func (r *Responder) sendFileThreshold() int64 {
	if r.SendFileThreshold != 0 {
		return r.SendFileThreshold
	}
	return SendFileThreshold
}

func writeNotModified(resp *http11.Response, etag, lastModified string) {
	resp.SetStatus(304)
	resp.SetHeader("ETag", etag)
	resp.SetHeader("Last-Modified", lastModified)
	resp.SetBody(nil)
}

// load returns the file body from cache when fresh, otherwise reads it
// from disk and (re)populates the cache entry.
func (r *Responder) load(path string, info os.FileInfo) ([]byte, error) {
	if r.Cache != nil {
		stale := func(e *cache.Entry) bool {
			return !e.StoredMTime.Equal(info.ModTime())
		}
		if e, ok := r.Cache.Get(path, stale); ok {
			return e.Value, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if r.Cache != nil {
		r.Cache.Put(&cache.Entry{
			Key:          path,
			Value:        data,
			ContentType:  mimeFor(path),
			LastModified: info.ModTime(),
			StoredMTime:  info.ModTime(),
			Size:         int64(len(data)),
		})
	}
	return data, nil
}

// WriteBody writes body onto conn, preferring the zero-copy sendfile path
// when conn is a plain TCP socket and path still names the source file on
// disk; otherwise it falls back to an ordinary Write. Exported for
// pkg/uvhttp/conn, which owns a connection's writer once a Response names
// BodyFilePath. Responder.Serve sets that field on the size threshold
// alone, so the plain-TCP check here is what keeps TLS connections off the
// sendfile path.
func WriteBody(conn net.Conn, path string, body []byte) error {
	if conn == nil || !canUseSendFile(conn) {
		_, err := conn.Write(body)
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		_, werr := conn.Write(body)
		return werr
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		_, werr := conn.Write(body)
		return werr
	}
	_, err = sendFile(conn, f, 0, info.Size())
	return err
}

// Prewarm reads path into the cache ahead of the first request for it.
func (r *Responder) Prewarm(path string) error {
	full, err := r.ResolvePath(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	_, err = r.load(full, info)
	return err
}

// PrewarmDirectory walks dir (relative to root) and prewarms up to
// maxFiles regular files.
func (r *Responder) PrewarmDirectory(dir string, maxFiles int) error {
	full, err := r.ResolvePath(dir)
	if err != nil {
		return err
	}
	count := 0
	return filepath.Walk(full, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if count >= maxFiles {
			return filepath.SkipAll
		}
		if info.Mode().IsRegular() {
			if _, loadErr := r.load(p, info); loadErr == nil {
				count++
			}
		}
		return nil
	})
}

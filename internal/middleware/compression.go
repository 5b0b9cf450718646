package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig controls gzip for API and metrics responses.
type CompressionConfig struct {
	// Bodies shorter than MinSize are sent as is.
	MinSize int
	// Level is a compress/gzip level.
	Level int
}

func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{MinSize: 1024, Level: gzip.DefaultCompression}
}

// compressibleTypes are the bodies this server produces that shrink well.
// Thumbnails are already JPEG and event streams must not be buffered.
var compressibleTypes = map[string]bool{
	"application/json":             true,
	"text/plain":                   true,
	"application/openmetrics-text": true,
}

// Compression gzips JSON and metrics responses for clients that accept it.
// The body is held until MinSize bytes are written or the handler returns,
// then sent compressed or unchanged.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := &sync.Pool{New: func() any {
		gz, err := gzip.NewWriterLevel(io.Discard, config.Level)
		if err != nil {
			gz = gzip.NewWriter(io.Discard)
		}
		return gz
	}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !wantsGzip(r) {
				next.ServeHTTP(w, r)
				return
			}
			cw := &compressWriter{ResponseWriter: w, pool: pool, minSize: config.MinSize, status: http.StatusOK}
			defer cw.finish()
			next.ServeHTTP(cw, r)
		})
	}
}

// wantsGzip excludes WebSocket upgrades and SSE, which stream.
func wantsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") &&
		r.Header.Get("Upgrade") == "" &&
		!strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

type compressWriter struct {
	http.ResponseWriter
	pool    *sync.Pool
	minSize int
	status  int
	pending bytes.Buffer
	gz      *gzip.Writer
	decided bool
}

func (c *compressWriter) WriteHeader(status int) {
	if !c.decided {
		c.status = status
	}
}

func (c *compressWriter) Write(p []byte) (int, error) {
	if c.decided {
		if c.gz != nil {
			return c.gz.Write(p)
		}
		return c.ResponseWriter.Write(p)
	}
	c.pending.Write(p)
	if c.pending.Len() > c.minSize {
		if err := c.decide(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// decide sends the status line and the held bytes, compressed when the body
// is large enough and of a compressible type.
func (c *compressWriter) decide() error {
	c.decided = true
	h := c.Header()
	mediaType, _, _ := mime.ParseMediaType(h.Get("Content-Type"))

	if c.pending.Len() >= c.minSize && compressibleTypes[mediaType] {
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		c.gz = c.pool.Get().(*gzip.Writer)
		c.gz.Reset(c.ResponseWriter)
		c.ResponseWriter.WriteHeader(c.status)
		_, err := c.gz.Write(c.pending.Bytes())
		c.pending.Reset()
		return err
	}

	c.ResponseWriter.WriteHeader(c.status)
	_, err := c.ResponseWriter.Write(c.pending.Bytes())
	c.pending.Reset()
	return err
}

func (c *compressWriter) finish() {
	if !c.decided {
		_ = c.decide()
	}
	if c.gz != nil {
		_ = c.gz.Close()
		c.pool.Put(c.gz)
		c.gz = nil
	}
}

func (c *compressWriter) Flush() {
	if !c.decided {
		_ = c.decide()
	}
	if c.gz != nil {
		_ = c.gz.Flush()
	}
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *compressWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}

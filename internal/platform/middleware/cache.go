package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/cache"
)

// CacheConfig controls the validator and Cache-Control headers written by
// ETag, and the paths both cache middlewares leave alone.
type CacheConfig struct {
	MaxAge       int
	Private      bool
	VaryHeaders  []string
	ExcludePaths []string
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:      60,
		Private:     true,
		VaryHeaders: []string{"Accept", "Authorization"},
	}
}

// bufferedResponseWriter holds the status and body until the middleware
// decides what to send.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{writer: w, statusCode: http.StatusOK}
}

func (w *bufferedResponseWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedResponseWriter) WriteHeader(code int) { w.statusCode = code }

func (w *bufferedResponseWriter) Flush() {}

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// capture runs next against a buffered writer and restores the original
// writer before returning.
func capture(c echo.Context, next echo.HandlerFunc) (*bufferedResponseWriter, http.ResponseWriter, error) {
	res := c.Response()
	orig := res.Writer
	buf := newBufferedResponseWriter(orig)
	res.Writer = buf
	err := next(c)
	res.Writer = orig
	return buf, orig, err
}

// ETag sets a weak ETag plus Cache-Control and Vary on successful GET and
// HEAD responses, and answers 304 when If-None-Match matches.
func ETag(config CacheConfig) echo.MiddlewareFunc {
	cacheControl := buildCacheControl(config)
	vary := strings.Join(config.VaryHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if shouldSkip(req.URL.Path, config.ExcludePaths) {
				return next(c)
			}

			buf, orig, err := capture(c, next)
			if err != nil {
				return err
			}
			if buf.statusCode >= 400 {
				return buf.flushTo()
			}

			h := c.Response().Header()
			h.Set(echo.HeaderCacheControl, cacheControl)
			if vary != "" {
				h.Set(echo.HeaderVary, vary)
			}
			etag := computeETag(buf.buf.Bytes())
			h.Set("ETag", etag)

			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flushTo()
		}
	}
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ResponseCache serves repeated GET requests from store. Only 200 responses
// are stored. A failing backend is logged and the request is served
// uncached.
func ResponseCache(store cache.Store, ttl time.Duration, config CacheConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || shouldSkip(req.URL.Path, config.ExcludePaths) {
				return next(c)
			}

			ctx := req.Context()
			key := cacheKey(req.URL.Path, req.URL.Query().Encode())
			res := c.Response()

			data, ok, err := store.Get(ctx, key)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("response cache read failed")
			}
			if ok {
				var entry cachedResponse
				if err := json.Unmarshal(data, &entry); err == nil {
					res.Header().Set("X-Cache", "HIT")
					return c.Blob(entry.Status, entry.ContentType, entry.Body)
				}
				logger.Warn().Str("key", key).Msg("discarding malformed cache entry")
			}

			buf, _, err := capture(c, next)
			if err != nil {
				return err
			}

			if buf.statusCode == http.StatusOK {
				entry, err := json.Marshal(cachedResponse{
					Status:      buf.statusCode,
					ContentType: res.Header().Get(echo.HeaderContentType),
					Body:        buf.buf.Bytes(),
				})
				if err == nil {
					err = store.Set(ctx, key, entry, ttl)
				}
				if err != nil {
					logger.Warn().Err(err).Str("key", key).Msg("response cache write failed")
				}
			}

			res.Header().Set("X-Cache", "MISS")
			return buf.flushTo()
		}
	}
}

// computeETag returns a weak validator over the response body.
func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return fmt.Sprintf(`W/"%x"`, sum[:16])
}

// cacheKey combines the path with the canonical (key-sorted) query string.
func cacheKey(path, query string) string {
	if query == "" {
		return "resp:" + path
	}
	return "resp:" + path + "?" + query
}

func shouldSkip(path string, excludes []string) bool {
	for _, ex := range excludes {
		if path == ex {
			return true
		}
	}
	return false
}

func buildCacheControl(config CacheConfig) string {
	scope := "public"
	if config.Private {
		scope = "private"
	}
	return fmt.Sprintf("%s, max-age=%d", scope, config.MaxAge)
}

// etagMatch compares an If-None-Match value against etag using weak
// comparison. Lists and "*" are supported.
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(headerVal, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}

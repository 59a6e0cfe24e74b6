package http

import (
	"context"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/apien/apien/internal/logger"
	"github.com/apien/apien/internal/lookup"
)

// RequestLogger records who asked for what. Implementations may decline to
// record an address and report false.
type RequestLogger interface {
	LogRequest(ctx context.Context, ip, request string) (bool, error)
}

// LookupHandler serves GET /<dimension>/<values>/... requests.
type LookupHandler struct {
	service    *lookup.Service
	requestLog RequestLogger
	log        *logger.Logger
}

// LookupOption configures a LookupHandler.
type LookupOption func(*LookupHandler)

// WithRequestLog records every request's client address and path.
func WithRequestLog(rl RequestLogger) LookupOption {
	return func(h *LookupHandler) { h.requestLog = rl }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(l *logger.Logger) LookupOption {
	return func(h *LookupHandler) { h.log = l }
}

// NewLookupHandler creates a handler over svc.
func NewLookupHandler(svc *lookup.Service, opts ...LookupOption) *LookupHandler {
	h := &LookupHandler{service: svc, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.Component("http")
	return h
}

// ServeHTTP handles a lookup request.
func (h *LookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	h.logRequest(r, path)

	resp, err := h.service.Handle(r.Context(), path, r.URL.Query())
	if err != nil {
		writeAPIError(w, r, h.log, err)
		return
	}

	etag := ETag(resp.Body)
	header := w.Header()
	header.Set("Content-Type", resp.ContentType)
	header.Set("ETag", etag)
	if resp.Encoding != "" {
		header.Set(HeaderPayloadEncoding, resp.Encoding)
	}
	if resp.CacheHit {
		header.Set(HeaderCache, "HIT")
	} else {
		header.Set(HeaderCache, "MISS")
	}

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		h.log.Debug().Err(err).Str("request_id", requestID).Msg("client went away")
	}
}

// logRequest records the request. Failures never fail the request.
func (h *LookupHandler) logRequest(r *http.Request, path string) {
	if h.requestLog == nil {
		return
	}
	ip := ClientIP(r)
	if _, err := h.requestLog.LogRequest(r.Context(), ip, path); err != nil {
		h.log.Warn().Err(err).Str("ip", ip).Msg("failed to record request")
	}
}

// ClientIP returns the first X-Forwarded-For entry, else the host part of
// the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ETag returns a strong entity tag for body.
func ETag(body []byte) string {
	hi, lo := murmur3.Sum128(body)
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(hi >> (56 - 8*i))
		b[8+i] = byte(lo >> (56 - 8*i))
	}
	return `"` + hex.EncodeToString(b[:]) + `"`
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

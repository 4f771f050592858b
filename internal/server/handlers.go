package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/parsed-text/internal/cache"
	"github.com/raaihank/parsed-text/internal/extraction"
	"github.com/raaihank/parsed-text/internal/parsedtext"
	"github.com/raaihank/parsed-text/internal/patterns"
	"github.com/raaihank/parsed-text/internal/store"
	"github.com/raaihank/parsed-text/internal/websocket"
)

// ExtractRequest is the body of POST /v1/extract
type ExtractRequest struct {
	Text  string              `json:"text"`
	Parse []parsedtext.Option `json:"parse,omitempty"`
}

// ExtractResponse is the result of POST /v1/extract
type ExtractResponse struct {
	Segments []extraction.Segment `json:"segments"`
	Matched  int                  `json:"matched"`
	Cached   bool                 `json:"cached"`
}

// RenderRequest is the body of POST /v1/render
type RenderRequest struct {
	Text     string              `json:"text"`
	Parse    []parsedtext.Option `json:"parse,omitempty"`
	Platform string              `json:"platform,omitempty"`
	Props    *parsedtext.Props   `json:"props,omitempty"`
}

// requestError is a client error with its HTTP status
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	parse := s.parseConfig()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":            "parsed-text",
		"version":         version,
		"platform":        parse.Platform,
		"default_options": len(parse.Options),
		"patterns":        patterns.Names(),
		"cache_enabled":   s.cache != nil,
		"store_enabled":   s.store != nil,
		"websocket":       s.wsHub.GetStats(),
	})
}

// handlePatterns lists the built-in pattern registry
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"patterns": patterns.Default().List(),
	})
}

// handleExtract segments text and returns the flat segment list
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req ExtractRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeRequestError(w, err)
		return
	}

	opts := req.Parse
	if opts == nil {
		opts = s.parseConfig().Options
	}
	if err := s.checkOptions(opts); err != nil {
		s.writeRequestError(w, err)
		return
	}

	descriptors, err := parsedtext.Resolve(opts)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}

	optionBytes, err := json.Marshal(opts)
	if err != nil {
		log.Error("Failed to serialize options", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = cache.Key(s.config.Cache.KeyPrefix, req.Text, optionBytes)
		if cached, ok := s.cache.Get(r.Context(), cacheKey); ok {
			resp := &ExtractResponse{Segments: cached.Segments, Matched: cached.Matched, Cached: true}
			s.afterExtract(r, "extract", req.Text, resp, len(opts), start)
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	segments, err := extraction.Extract(req.Text, descriptors)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}

	resp := &ExtractResponse{
		Segments: segments,
		Matched:  len(extraction.Matches(segments)),
	}

	if s.cache != nil {
		if err := s.cache.Store(r.Context(), cacheKey, &cache.CachedResult{Segments: segments, Matched: resp.Matched}); err != nil {
			log.Warn("Failed to cache extraction", zap.Error(err))
		}
	}

	if s.store != nil && req.Text != "" {
		s.persist(r, "api", req.Text, optionBytes, segments)
	}

	s.afterExtract(r, "extract", req.Text, resp, len(opts), start)
	writeJSON(w, http.StatusOK, resp)
}

// handleRender segments text and assembles the platform render tree
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RenderRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeRequestError(w, err)
		return
	}

	defaults := s.parseConfig()

	opts := req.Parse
	if opts == nil {
		opts = defaults.Options
	}
	if err := s.checkOptions(opts); err != nil {
		s.writeRequestError(w, err)
		return
	}

	platformName := req.Platform
	if platformName == "" {
		platformName = defaults.Platform
	}
	platform, err := parsedtext.ParsePlatform(platformName)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}

	props := defaults.Props
	if req.Props != nil {
		props = *req.Props
	}

	tree, err := parsedtext.Parse(req.Text, opts, props, platform)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}

	resp := &ExtractResponse{Segments: tree.Segments, Matched: len(extraction.Matches(tree.Segments))}
	s.afterExtract(r, "render", req.Text, resp, len(opts), start)
	writeJSON(w, http.StatusOK, tree)
}

// decode reads a JSON body bounded by the configured text limit
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	maxText := s.config.Server.MaxTextBytes
	// JSON escaping can grow text up to six times; options add a little more.
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxText)*6+64<<10)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("request body too large")}
		}
		return badRequest("invalid request body: %v", err)
	}

	var text string
	switch req := v.(type) {
	case *ExtractRequest:
		text = req.Text
	case *RenderRequest:
		text = req.Text
	}
	if len(text) > maxText {
		return &requestError{
			status: http.StatusRequestEntityTooLarge,
			err:    fmt.Errorf("text is %d bytes, limit is %d", len(text), maxText),
		}
	}
	return nil
}

// checkOptions enforces the request limits on parse options
func (s *Server) checkOptions(opts []parsedtext.Option) error {
	limits := s.config.Server
	if limits.MaxOptions > 0 && len(opts) > limits.MaxOptions {
		return badRequest("%d parse options exceed the limit of %d", len(opts), limits.MaxOptions)
	}
	for i, opt := range opts {
		if limits.MaxPatternLength > 0 && len(opt.Pattern) > limits.MaxPatternLength {
			return badRequest("parse option %d: pattern longer than %d bytes", i, limits.MaxPatternLength)
		}
	}
	return nil
}

// persist stores a segmentation. Store failures are logged only.
func (s *Server) persist(r *http.Request, source, text string, options []byte, segments []extraction.Segment) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	record, err := store.NewRecord(source, text, options, segments)
	if err != nil {
		log.Warn("Failed to build segmentation record", zap.Error(err))
		return
	}
	if _, err := s.store.Insert(r.Context(), record); err != nil {
		log.Warn("Failed to persist segmentation", zap.Error(err))
	}
}

// afterExtract logs, measures and broadcasts the extraction
func (s *Server) afterExtract(r *http.Request, endpoint, text string, resp *ExtractResponse, options int, start time.Time) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)
	log.LogExtraction(len(text), options, len(resp.Segments), resp.Matched, resp.Cached)

	elapsed := time.Since(start)
	byDescriptor := countByDescriptor(resp.Segments)
	s.metrics.ObserveExtraction(endpoint, resp.Cached, len(text), byDescriptor, elapsed)

	event := websocket.Event{
		Type:      websocket.EventTypeExtraction,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.ExtractionEvent{
			RequestID:    requestID,
			Endpoint:     endpoint,
			ClientIP:     getClientIP(r),
			TextBytes:    len(text),
			Segments:     len(resp.Segments),
			Matched:      resp.Matched,
			ByDescriptor: byDescriptor,
			Cached:       resp.Cached,
			ProcessingMS: float64(elapsed.Microseconds()) / 1000,
		},
	}
	s.wsHub.BroadcastEvent(event)

	if s.events != nil {
		if err := s.events.Publish(event); err != nil {
			log.Warn("Failed to publish extraction event", zap.Error(err))
		}
	}
}

// countByDescriptor counts matched segments per option id, falling back
// to the option type and then its position
func countByDescriptor(segments []extraction.Segment) map[string]int {
	counts := make(map[string]int)
	for _, seg := range extraction.Matches(segments) {
		counts[descriptorName(seg)]++
	}
	return counts
}

func descriptorName(seg extraction.Segment) string {
	for _, key := range []string{parsedtext.KeyID, parsedtext.KeyType} {
		if name, ok := seg.Metadata[key].(string); ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("option_%d", seg.DescriptorIndex)
}

// writeRequestError maps an error to its HTTP status and writes it
func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.status
	case errors.Is(err, patterns.ErrUnsupportedPatternType),
		errors.Is(err, extraction.ErrInvalidPattern),
		errors.Is(err, parsedtext.ErrMissingPattern),
		errors.Is(err, parsedtext.ErrUnsupportedPlatform):
		status = http.StatusBadRequest
	}

	s.metrics.ExtractionErrorsTotal.WithLabelValues(errorReason(status)).Inc()

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func errorReason(status int) string {
	switch status {
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusBadRequest:
		return "invalid_request"
	default:
		return "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

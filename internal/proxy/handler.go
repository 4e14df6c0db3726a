// Package proxy implements the forwarding pipeline: authenticated requests
// are fingerprinted, served from cache when possible, and otherwise relayed
// to the resolved upstream endpoint with the response cached on the way
// back. Every terminal path appends exactly one audit log record.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keizman/overlay-relay/internal/auditlog"
	"github.com/keizman/overlay-relay/internal/auth"
	"github.com/keizman/overlay-relay/internal/cache"
	"github.com/keizman/overlay-relay/internal/config"
	"github.com/keizman/overlay-relay/internal/httputil"
	"github.com/keizman/overlay-relay/internal/router"
	"github.com/keizman/overlay-relay/internal/telemetry"
)

// Handler holds the pipeline's collaborators.
type Handler struct {
	store   cache.Store
	audit   *auditlog.Logger
	metrics *telemetry.Metrics
	cfg     func() *config.Config
	client  *http.Client
}

func NewHandler(store cache.Store, audit *auditlog.Logger, metrics *telemetry.Metrics, cfg func() *config.Config) *Handler {
	return &Handler{
		store:   store,
		audit:   audit,
		metrics: metrics,
		cfg:     cfg,
		client:  &http.Client{},
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	start := time.Now()
	cfg := h.cfg()

	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON body")
		return
	}

	messages := parseMessages(fields["messages"])
	model := ""
	if cfg.Cache.IncludeModel {
		json.Unmarshal(fields["model"], &model)
	}
	key := cache.Fingerprint(messages, userLevel(fields), model)

	// LOOKUP. A failing cache backend degrades to a miss.
	cached, found, err := h.store.Get(r.Context(), key)
	if err != nil {
		slog.Warn("cache lookup failed, treating as miss", "request_id", reqID, "cache_key", key, "error", err)
		h.metrics.RecordCacheOp("get", "error")
	} else if found {
		h.metrics.RecordCacheOp("get", "hit")
		slog.Info("cache hit", "request_id", reqID, "cache_key", key)

		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)

		h.appendAudit(auditlog.Record{
			RequestID: reqID,
			CacheKey:  key,
			Outcome:   auditlog.OutcomeHit,
			Status:    http.StatusOK,
			Request:   body,
			Response:  cached,
		})
		h.metrics.RecordRequest(auditlog.OutcomeHit, "200", float64(time.Since(start).Milliseconds()))
		return
	} else {
		h.metrics.RecordCacheOp("get", "miss")
	}

	// ROUTE + CALL_UPSTREAM.
	target := router.Resolve(r.Header, cfg.Upstream.DefaultEndpoint)
	slog.Info("cache miss, forwarding", "request_id", reqID, "cache_key", key, "target", target)

	forwardBody, err := buildForwardBody(fields, cfg.Upstream.PromptPrefix)
	if err != nil {
		httputil.WriteInternalError(w, reqID, "Failed to prepare upstream request")
		return
	}

	// The upstream call and cache store run on a context detached from the
	// client connection: a disconnect must not stop the cache from warming.
	upCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), cfg.Upstream.Timeout)
	defer cancel()

	upstreamStart := time.Now()
	resp, err := h.callUpstream(upCtx, target, forwardBody, authInfo.Authorization)
	if err != nil {
		status := http.StatusBadGateway
		if isTimeout(err) {
			status = http.StatusGatewayTimeout
			httputil.WriteUpstreamTimeoutError(w, reqID, "Upstream request timed out")
		} else {
			httputil.WriteUpstreamError(w, reqID, "Upstream request failed")
		}
		slog.Error("upstream request failed", "request_id", reqID, "target", target, "error", err)

		h.appendAudit(auditlog.Record{
			RequestID: reqID,
			CacheKey:  key,
			Outcome:   auditlog.OutcomeUpstreamError,
			Target:    target,
			Status:    status,
			Request:   body,
		})
		h.metrics.RecordRequest(auditlog.OutcomeUpstreamError, strconv.Itoa(status), float64(time.Since(start).Milliseconds()))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		httputil.WriteUpstreamError(w, reqID, "Failed to read upstream response")
		h.appendAudit(auditlog.Record{
			RequestID: reqID,
			CacheKey:  key,
			Outcome:   auditlog.OutcomeUpstreamError,
			Target:    target,
			Status:    http.StatusBadGateway,
			Request:   body,
		})
		h.metrics.RecordRequest(auditlog.OutcomeUpstreamError, "502", float64(time.Since(start).Milliseconds()))
		return
	}
	h.metrics.RecordUpstream(strconv.Itoa(resp.StatusCode), float64(time.Since(upstreamStart).Milliseconds()))

	if resp.StatusCode != http.StatusOK {
		// Propagate the upstream's status and body verbatim.
		slog.Warn("upstream returned error", "request_id", reqID, "target", target, "status", resp.StatusCode)
		copyContentType(w, resp)
		w.WriteHeader(resp.StatusCode)
		w.Write(respBody)

		h.appendAudit(auditlog.Record{
			RequestID: reqID,
			CacheKey:  key,
			Outcome:   auditlog.OutcomeUpstreamError,
			Target:    target,
			Status:    resp.StatusCode,
			Request:   body,
			Response:  respBody,
		})
		h.metrics.RecordRequest(auditlog.OutcomeUpstreamError, strconv.Itoa(resp.StatusCode), float64(time.Since(start).Milliseconds()))
		return
	}

	// STORE. Only well-formed JSON bodies are cacheable; a store failure is
	// logged and never surfaces to the client.
	var respJSON json.RawMessage
	if json.Valid(respBody) {
		respJSON = respBody
		if err := h.store.Set(upCtx, key, respBody); err != nil {
			slog.Warn("cache store failed", "request_id", reqID, "cache_key", key, "error", err)
			h.metrics.RecordCacheOp("set", "error")
		} else {
			h.metrics.RecordCacheOp("set", "stored")
		}
	} else {
		slog.Warn("upstream response is not JSON, skipping cache", "request_id", reqID, "target", target)
	}

	copyContentType(w, resp)
	w.Write(respBody)

	h.appendAudit(auditlog.Record{
		RequestID: reqID,
		CacheKey:  key,
		Outcome:   auditlog.OutcomeMiss,
		Target:    target,
		Status:    http.StatusOK,
		Request:   body,
		Response:  respJSON,
	})
	h.metrics.RecordRequest(auditlog.OutcomeMiss, "200", float64(time.Since(start).Milliseconds()))
}

// AuditAuthReject records the terminal transition for requests the auth
// middleware turned away. Wired as the middleware's RejectFunc.
func (h *Handler) AuditAuthReject(r *http.Request, reqID, reason string) {
	h.appendAudit(auditlog.Record{
		RequestID: reqID,
		Outcome:   auditlog.OutcomeAuthError,
		Status:    http.StatusUnauthorized,
	})
	h.metrics.RecordRequest(auditlog.OutcomeAuthError, "401", 0)
	slog.Warn("request rejected", "request_id", reqID, "reason", reason, "remote", r.RemoteAddr)
}

func (h *Handler) callUpstream(ctx context.Context, target string, body []byte, authorization string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authorization)
	return h.client.Do(req)
}

// appendAudit is best-effort: a failing log backend must not affect the
// response.
func (h *Handler) appendAudit(rec auditlog.Record) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Append(rec); err != nil {
		slog.Warn("audit log write failed", "request_id", rec.RequestID, "error", err)
	}
}

func parseMessages(raw json.RawMessage) []cache.Message {
	var messages []cache.Message
	if len(raw) > 0 {
		json.Unmarshal(raw, &messages)
	}
	return messages
}

// userLevel reads the x_user_level field the browser extension injects; it
// scopes cache entries per subscription tier.
func userLevel(fields map[string]json.RawMessage) string {
	var level string
	if raw, ok := fields["x_user_level"]; ok {
		json.Unmarshal(raw, &level)
	}
	if level == "" {
		return cache.DefaultUserLevel
	}
	return level
}

// buildForwardBody strips relay-internal x_-prefixed fields and injects the
// configured prompt prefix into user messages that do not already carry it.
func buildForwardBody(fields map[string]json.RawMessage, prefix string) ([]byte, error) {
	forward := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if strings.HasPrefix(k, "x_") {
			continue
		}
		forward[k] = v
	}

	if prefix != "" && len(forward["messages"]) > 0 {
		var msgs []map[string]any
		if err := json.Unmarshal(forward["messages"], &msgs); err == nil {
			for _, msg := range msgs {
				if msg["role"] != "user" {
					continue
				}
				content, ok := msg["content"].(string)
				if !ok || content == "" || strings.HasPrefix(content, prefix) {
					continue
				}
				msg["content"] = prefix + "\n" + content
			}
			if encoded, err := json.Marshal(msgs); err == nil {
				forward["messages"] = encoded
			}
		}
	}

	return json.Marshal(forward)
}

func copyContentType(w http.ResponseWriter, resp *http.Response) {
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

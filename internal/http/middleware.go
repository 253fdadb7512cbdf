package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/virtual-waiting-room/internal/idempotency"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelhttp "go.opentelemetry.io/otel/propagation"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerMiddleware stores a request-scoped logger in the context and
// records the request count by route pattern.
func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.WithLogger(r.Context(), entry)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := chi.RouteContext(ctx).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
			entry.WithFields(map[string]interface{}{
				"method": r.Method,
				"route":  route,
				"status": status,
			}).Debug("request handled")
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelhttp.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// RateLimitMiddleware limits requests per client address and, when the
// JSON body names one, per userId.
func RateLimitMiddleware(rl *rateLimit.RateLimiter, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keys := []string{"ip:" + clientIP(r)}
			if userID := peekUserID(r); userID != "" {
				keys = append(keys, "user:"+userID)
			}
			for _, key := range keys {
				ok, err := rl.Allow(r.Context(), key)
				if err != nil {
					observability.FromContext(r.Context(), logger).WithError(err).Warn("rate limiter unavailable")
				}
				if !ok {
					observability.RateLimitExceeded.Inc()
					writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "RATE_LIMITED", Message: "too many requests"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekUserID reads the userId from a JSON body and puts the bytes back for
// the handler. Bodies over maxBodyBytes are left for the handler to reject.
func peekUserID(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), r.Body), r.Body}
	if err != nil || len(data) > maxBodyBytes {
		return ""
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if json.Unmarshal(data, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.UserID)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. Requests without the header pass through.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 255 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_IDEMPOTENCY_KEY", Message: "Idempotency-Key is too long"})
				return
			}
			log := observability.FromContext(r.Context(), logger).WithField("idempotency_key", key)
			scoped := r.URL.Path + ":" + key

			outcome, stored, err := idemp.Begin(r.Context(), scoped)
			if err != nil {
				log.WithError(err).Warn("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			}

			switch outcome {
			case idempotency.Replay:
				if stored.ContentType != "" {
					w.Header().Set("Content-Type", stored.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				w.Write(stored.Result)
				return
			case idempotency.InFlight:
				writeJSON(w, http.StatusConflict, errorResponse{Error: "IDEMPOTENCY_IN_FLIGHT", Message: "a request with this Idempotency-Key is still in progress"})
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ctx := r.Context()
			if status >= http.StatusInternalServerError {
				if err := idemp.Abandon(ctx, scoped); err != nil {
					log.WithError(err).Warn("failed to release idempotency key")
				}
				return
			}
			resp := idempotency.Response{Status: status, ContentType: ww.Header().Get("Content-Type"), Result: body.Bytes()}
			if err := idemp.Complete(ctx, scoped, resp); err != nil {
				log.WithError(err).Warn("failed to store idempotent response")
			}
		})
	}
}

// clientIP is the peer address. Forwarded headers are client-controlled and
// ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

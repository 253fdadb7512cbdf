package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/virtual-waiting-room/internal/domain"
	"github.com/robertarktes/virtual-waiting-room/internal/observability"
	"github.com/robertarktes/virtual-waiting-room/internal/queue"
)

const maxBodyBytes = 4 << 10

type QueueAPI interface {
	Enter(ctx context.Context, userID, eventID string) (queue.EnterResult, error)
	Status(ctx context.Context, token string) (domain.StatusView, error)
}

type HandoffAPI interface {
	Redeem(ctx context.Context, exchangeToken string) (domain.ReservationSession, error)
	Reservation(ctx context.Context, id string) (domain.ReservationSession, time.Duration, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Pingers is ready only when every dependency answers.
type Pingers []Pinger

func (p Pingers) Ping(ctx context.Context) error {
	for _, dep := range p {
		if err := dep.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

type Handlers struct {
	queue         QueueAPI
	handoff       HandoffAPI
	ready         Pinger
	redeemBaseURL string
	logger        observability.Logger
	now           func() time.Time
}

func NewHandlers(q QueueAPI, h HandoffAPI, ready Pinger, redeemBaseURL string, logger observability.Logger) *Handlers {
	return &Handlers{
		queue:         q,
		handoff:       h,
		ready:         ready,
		redeemBaseURL: strings.TrimRight(redeemBaseURL, "/"),
		logger:        logger,
		now:           time.Now,
	}
}

type enterRequest struct {
	UserID  string `json:"userId"`
	EventID string `json:"eventId"`
}

type enterResponse struct {
	QueueToken   string            `json:"queueToken"`
	Status       domain.TokenState `json:"status"`
	Position     *int64            `json:"position"`
	ExpiresInSec int64             `json:"expiresInSec"`
}

type statusResponse struct {
	QueueToken       string            `json:"queueToken"`
	Status           domain.TokenState `json:"status"`
	Position         *int64            `json:"position"`
	EstimatedWaitSec *int64            `json:"estimatedWaitSec"`
	ExpiresInSec     int64             `json:"expiresInSec"`
	ExchangeToken    *string           `json:"exchangeToken"`
	RedeemURL        *string           `json:"redeemUrl"`
}

type redeemRequest struct {
	ExchangeToken string `json:"exchangeToken"`
}

type reservationResponse struct {
	ReservationID string `json:"reservationId"`
	ExpiresInSec  int64  `json:"expiresInSec"`
	UserID        string `json:"userId"`
	EventID       string `json:"eventId"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *Handlers) Enter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBodyError(w, err)
		return
	}

	res, err := h.queue.Enter(r.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.EventID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, enterResponse{
		QueueToken:   res.Token.ID,
		Status:       domain.StateWaiting,
		Position:     res.Position,
		ExpiresInSec: domain.CeilSeconds(res.ExpiresIn),
	})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.queue.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := statusResponse{
		QueueToken:       view.QueueToken,
		Status:           view.State,
		Position:         view.Position,
		EstimatedWaitSec: view.EstimatedWaitSec,
		ExpiresInSec:     domain.CeilSeconds(view.ExpiresIn),
		ExchangeToken:    view.ExchangeToken,
	}
	if view.ExchangeToken != nil {
		u := h.redeemBaseURL + "/v1/reservations/redeem?exchangeToken=" + url.QueryEscape(*view.ExchangeToken)
		resp.RedeemURL = &u
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Redeem(w http.ResponseWriter, r *http.Request) {
	// the body may be empty when the client follows redeemUrl as given
	var req redeemRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeBodyError(w, err)
		return
	}
	token := strings.TrimSpace(req.ExchangeToken)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("exchangeToken"))
	}

	session, err := h.handoff.Redeem(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reservationResponse{
		ReservationID: session.ID,
		ExpiresInSec:  domain.CeilSeconds(session.ExpiresAt.Sub(h.now())),
		UserID:        session.UserID,
		EventID:       session.EventID,
	})
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	session, ttl, err := h.handoff.Reservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationResponse{
		ReservationID: session.ID,
		ExpiresInSec:  domain.CeilSeconds(ttl),
		UserID:        session.UserID,
		EventID:       session.EventID,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready.Ping(r.Context()); err != nil {
			observability.FromContext(r.Context(), h.logger).WithError(err).Warn("readiness check failed")
			http.Error(w, "Not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fieldErr *domain.FieldError
	switch {
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "MISSING_FIELD", Message: fieldErr.Error()})
	case errors.Is(err, domain.ErrMissingField):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "MISSING_FIELD", Message: "missing required field"})
	case errors.Is(err, domain.ErrTokenNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "TOKEN_NOT_FOUND", Message: "queue token not found or expired"})
	case errors.Is(err, domain.ErrInvalidOrExpiredExchangeToken):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "INVALID_OR_EXPIRED_EXCHANGE_TOKEN", Message: "exchange token is invalid, expired or already used"})
	case errors.Is(err, domain.ErrReservationNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "RESERVATION_NOT_FOUND", Message: "reservation not found or expired"})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_INPUT", Message: "invalid input"})
	default:
		observability.FromContext(r.Context(), h.logger).WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Message: "internal error"})
	}
}

// decodeBody reads a JSON request body of at most maxBodyBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "BODY_TOO_LARGE", Message: "request body is too large"})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "INVALID_BODY", Message: "request body must be a JSON object"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"INTERNAL","message":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

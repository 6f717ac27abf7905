package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"settlenet/core/events"
	"settlenet/native/auth"
	"settlenet/native/broker"
	"settlenet/native/ledger"
	"settlenet/native/swap"
	"settlenet/observability"
	"settlenet/state"
)

// Server binds the settlement engines to HTTP handlers. Every mutating
// handler runs inside one store transaction; events buffered during the
// transaction are forwarded to the sinks only after the commit.
type Server struct {
	log     *slog.Logger
	store   *state.Store
	ledger  *ledger.Ledger
	broker  *broker.Engine
	swaps   *swap.Engine
	queue   *events.Queue
	sinks   events.Emitter
	metrics *observability.SettlementMetrics
}

// NewServer wires the handlers. queue must be the emitter configured on the
// engines; sinks receives committed events and may be nil.
func NewServer(log *slog.Logger, store *state.Store, book *ledger.Ledger, brokerEngine *broker.Engine, swapEngine *swap.Engine, queue *events.Queue, sinks events.Emitter) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:     log,
		store:   store,
		ledger:  book,
		broker:  brokerEngine,
		swaps:   swapEngine,
		queue:   queue,
		sinks:   sinks,
		metrics: observability.Settlement(),
	}
}

func (s *Server) transact(fn func() error) error {
	err := s.store.Transaction(fn)
	if s.queue != nil {
		if err != nil {
			s.queue.Reset()
		} else {
			for _, evt := range s.queue.Drain() {
				if s.sinks != nil {
					s.sinks.Emit(evt)
				}
			}
		}
	}
	return err
}

func (s *Server) readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Error("encode response", "err", err)
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	s.log.Warn("request rejected", "status", status, "err", err)
	s.respondJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, broker.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrSignatureInvalid), errors.Is(err, auth.ErrSignerMismatch):
		return http.StatusForbidden
	case errors.Is(err, broker.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrNonceReused):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, broker.ErrOverdraw):
		return http.StatusConflict
	case errors.Is(err, swap.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, broker.ErrOfferNotFound), errors.Is(err, swap.ErrNotActive), errors.Is(err, broker.ErrUnknownVenue):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrFrozen), errors.Is(err, broker.ErrFrozen), errors.Is(err, swap.ErrFrozen):
		return http.StatusLocked
	case errors.Is(err, broker.ErrVenueShortfall):
		return http.StatusBadGateway
	case errors.Is(err, swap.ErrSecretMismatch), errors.Is(err, swap.ErrExpired), errors.Is(err, swap.ErrNotExpired),
		errors.Is(err, swap.ErrNotAnnounced), errors.Is(err, swap.ErrDelayNotElapsed),
		errors.Is(err, broker.ErrNotAnnounced), errors.Is(err, broker.ErrDelayNotElapsed):
		return http.StatusUnprocessableEntity
	default:
		// Remaining rejections are term validation failures.
		return http.StatusBadRequest
	}
}

type statusBody struct {
	Status string `json:"status"`
}

var okBody = statusBody{Status: "ok"}

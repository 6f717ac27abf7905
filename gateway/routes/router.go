package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"settlenet/gateway/middleware"
)

// Config bundles the handler dependencies and the optional middleware stack.
type Config struct {
	Server        *Server
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
}

// RateLimitSettle and RateLimitQuery are the limiter keys the router applies
// to mutating and read-only routes respectively.
const (
	RateLimitSettle = "settle"
	RateLimitQuery  = "query"
)

// New assembles the gateway router.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	s := cfg.Server
	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(settle chi.Router) {
			if cfg.RateLimiter != nil {
				settle.Use(cfg.RateLimiter.Middleware(RateLimitSettle))
			}
			settle.Post("/deposit", s.handleDeposit)
			settle.Post("/withdraw", s.handleWithdraw)
			settle.Post("/trade", s.handleTrade)
			settle.Post("/trade/network", s.handleNetworkTrade)
			settle.Post("/cancel", s.handleCancel)
			settle.Post("/cancel/announce", s.handleAnnounceCancel)
			settle.Post("/cancel/slow", s.handleSlowCancel)
			settle.Post("/swap", s.handleSwapCreate)
			settle.Post("/swap/execute", s.handleSwapExecute)
			settle.Post("/swap/cancel", s.handleSwapCancel)
			settle.Post("/swap/cancel/announce", s.handleSwapAnnounceCancel)
			settle.Post("/swap/cancel/slow", s.handleSwapSlowCancel)
			settle.Post("/spender/authorize", s.handleSpender(true))
			settle.Post("/spender/revoke", s.handleSpender(false))
			settle.Post("/admin/freeze", s.handleFreeze(true))
			settle.Post("/admin/unfreeze", s.handleFreeze(false))
			settle.Post("/admin/withdraw", s.handleEmergencyWithdraw)
		})
		v1.Group(func(query chi.Router) {
			if cfg.RateLimiter != nil {
				query.Use(cfg.RateLimiter.Middleware(RateLimitQuery))
			}
			query.Get("/balance/{account}/{asset}", s.handleBalance)
			query.Get("/availability/{hash}", s.handleAvailability)
			query.Post("/swap/status", s.handleSwapStatus)
		})
	})

	return r
}

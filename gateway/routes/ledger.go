package routes

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type depositRequest struct {
	Account  string `json:"account"`
	Asset    string `json:"asset"`
	Declared string `json:"declared"`
	Received string `json:"received"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.respondError(w, err)
		return
	}
	declared, err := parseAmount(req.Declared)
	if err != nil {
		s.respondError(w, err)
		return
	}
	received, err := parseAmount(req.Received)
	if err != nil {
		s.respondError(w, err)
		return
	}
	var balance *big.Int
	err = s.transact(func() error {
		if err := s.ledger.Deposit(account, req.Asset, declared, received); err != nil {
			return err
		}
		var berr error
		balance, berr = s.ledger.Balance(account, req.Asset)
		return berr
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var wire wireWithdraw
	if err := s.readJSON(r, &wire); err != nil {
		s.respondError(w, err)
		return
	}
	req, err := wire.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.transact(func() error { return s.ledger.Withdraw(req) }); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(chi.URLParam(r, "account"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	balance, err := s.ledger.Balance(account, chi.URLParam(r, "asset"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

package routes

import (
	"net/http"
)

type swapRequest struct {
	Swap wireSwap `json:"swap"`
}

func (s *Server) handleSwapCreate(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	sw, err := req.Swap.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	err = s.transact(func() error { return s.swaps.Create(sw) })
	s.metrics.RecordSwap("create", err)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

type swapExecuteRequest struct {
	Swap   wireSwap `json:"swap"`
	Secret string   `json:"secret"`
}

func (s *Server) handleSwapExecute(w http.ResponseWriter, r *http.Request) {
	var req swapExecuteRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	sw, err := req.Swap.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	secret, err := parseHexBytes(req.Secret)
	if err != nil {
		s.respondError(w, err)
		return
	}
	err = s.transact(func() error { return s.swaps.Execute(sw, secret) })
	s.metrics.RecordSwap("execute", err)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

type swapCancelRequest struct {
	Swap      wireSwap `json:"swap"`
	FeeAmount string   `json:"feeAmount"`
	Nonce     uint64   `json:"nonce"`
	Signature string   `json:"signature"`
}

func (s *Server) handleSwapCancel(w http.ResponseWriter, r *http.Request) {
	var req swapCancelRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	sw, err := req.Swap.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	fee, err := parseAmount(req.FeeAmount)
	if err != nil {
		s.respondError(w, err)
		return
	}
	sig, err := parseHexBytes(req.Signature)
	if err != nil {
		s.respondError(w, err)
		return
	}
	err = s.transact(func() error { return s.swaps.Cancel(sw, fee, req.Nonce, sig) })
	s.metrics.RecordSwap("cancel", err)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

func (s *Server) handleSwapAnnounceCancel(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	sw, err := req.Swap.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.transact(func() error { return s.swaps.AnnounceCancel(sw) }); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

func (s *Server) handleSwapSlowCancel(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	sw, err := req.Swap.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	err = s.transact(func() error { return s.swaps.SlowCancel(sw) })
	s.metrics.RecordSwap("slow_cancel", err)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

func (s *Server) handleSwapStatus(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	sw, err := req.Swap.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	active, err := s.swaps.Active(sw)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"active": active})
}

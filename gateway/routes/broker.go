package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"settlenet/native/broker"
)

type tradeRequest struct {
	Offers   []wireOrder `json:"offers"`
	Fills    []wireOrder `json:"fills"`
	Matches  []wireMatch `json:"matches"`
	Operator string      `json:"operator"`
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	batch, err := req.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	err = s.transact(func() error { return s.broker.Trade(batch) })
	s.metrics.RecordTrade("direct", err)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

func (req tradeRequest) decode() (*broker.TradeBatch, error) {
	offers, err := decodeOrders(req.Offers)
	if err != nil {
		return nil, err
	}
	fills, err := decodeOrders(req.Fills)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddress(req.Operator)
	if err != nil {
		return nil, err
	}
	matches := make([]broker.Match, len(req.Matches))
	for i, m := range req.Matches {
		take, err := parseAmount(m.TakeAmount)
		if err != nil {
			return nil, err
		}
		matches[i] = broker.Match{OfferIndex: m.OfferIndex, FillIndex: m.FillIndex, TakeAmount: take}
	}
	return &broker.TradeBatch{Offers: offers, Fills: fills, Matches: matches, Operator: operator}, nil
}

type networkTradeRequest struct {
	Offers   []wireOrder        `json:"offers"`
	Matches  []wireNetworkMatch `json:"matches"`
	Operator string             `json:"operator"`
}

func (s *Server) handleNetworkTrade(w http.ResponseWriter, r *http.Request) {
	var req networkTradeRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	offers, err := decodeOrders(req.Offers)
	if err != nil {
		s.respondError(w, err)
		return
	}
	operator, err := parseAddress(req.Operator)
	if err != nil {
		s.respondError(w, err)
		return
	}
	matches := make([]broker.NetworkMatch, len(req.Matches))
	for i, m := range req.Matches {
		take, err := parseAmount(m.TakeAmount)
		if err != nil {
			s.respondError(w, err)
			return
		}
		data, err := parseHexBytes(m.Data)
		if err != nil {
			s.respondError(w, err)
			return
		}
		matches[i] = broker.NetworkMatch{OfferIndex: m.OfferIndex, TakeAmount: take, Venue: m.Venue, Data: data}
	}
	batch := &broker.NetworkBatch{Offers: offers, Matches: matches, Operator: operator}
	err = s.transact(func() error { return s.broker.NetworkTrade(batch) })
	s.metrics.RecordTrade("network", err)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

type cancelRequest struct {
	Offer     wireOrder `json:"offer"`
	FeeAmount string    `json:"feeAmount"`
	Nonce     uint64    `json:"nonce"`
	Signature string    `json:"signature"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	offer, err := req.Offer.decode()
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
	if err := s.transact(func() error { return s.broker.Cancel(&offer, fee, req.Nonce, sig) }); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

type announceCancelRequest struct {
	Offer     wireOrder `json:"offer"`
	Signature string    `json:"signature"`
}

func (s *Server) handleAnnounceCancel(w http.ResponseWriter, r *http.Request) {
	var req announceCancelRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	offer, err := req.Offer.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	sig, err := parseHexBytes(req.Signature)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.transact(func() error { return s.broker.AnnounceCancel(&offer, sig) }); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

type slowCancelRequest struct {
	Offer wireOrder `json:"offer"`
}

func (s *Server) handleSlowCancel(w http.ResponseWriter, r *http.Request) {
	var req slowCancelRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	offer, err := req.Offer.decode()
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.transact(func() error { return s.broker.SlowCancel(&offer) }); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, okBody)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	hash, err := parseHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	avail, ok, err := s.broker.Availability(hash)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if !ok {
		s.respondError(w, broker.ErrOfferNotFound)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"available": avail.String()})
}

type spenderRequest struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

func (s *Server) handleSpender(authorize bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req spenderRequest
		if err := s.readJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		owner, err := parseAddress(req.Owner)
		if err != nil {
			s.respondError(w, err)
			return
		}
		spender, err := parseAddress(req.Spender)
		if err != nil {
			s.respondError(w, err)
			return
		}
		sig, err := parseHexBytes(req.Signature)
		if err != nil {
			s.respondError(w, err)
			return
		}
		err = s.transact(func() error {
			if authorize {
				return s.broker.AuthorizeSpender(owner, spender, req.Nonce, sig)
			}
			return s.broker.UnauthorizeSpender(owner, spender, req.Nonce, sig)
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, okBody)
	}
}

type adminRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Asset   string `json:"asset"`
}

func (s *Server) handleFreeze(frozen bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminRequest
		if err := s.readJSON(r, &req); err != nil {
			s.respondError(w, err)
			return
		}
		caller, err := parseAddress(req.Caller)
		if err != nil {
			s.respondError(w, err)
			return
		}
		err = s.transact(func() error {
			if frozen {
				return s.broker.Freeze(caller)
			}
			return s.broker.Unfreeze(caller)
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, okBody)
	}
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := s.readJSON(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		s.respondError(w, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.respondError(w, err)
		return
	}
	released := "0"
	err = s.transact(func() error {
		amount, err := s.broker.EmergencyWithdraw(caller, account, req.Asset)
		if err != nil {
			return err
		}
		released = amount.String()
		return nil
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"released": released})
}

package routes

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"settlenet/crypto"
	"settlenet/native/broker"
	"settlenet/native/ledger"
	"settlenet/native/swap"
)

func parseAddress(s string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(s))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr.Bytes20(), nil
}

func parseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseHexBytes(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex value: %w", err)
	}
	return raw, nil
}

func parseHash(s string) ([32]byte, error) {
	var hash [32]byte
	raw, err := parseHexBytes(s)
	if err != nil {
		return hash, err
	}
	if len(raw) != 32 {
		return hash, fmt.Errorf("expected 32-byte hash, got %d bytes", len(raw))
	}
	copy(hash[:], raw)
	return hash, nil
}

type wireOrder struct {
	Maker       string `json:"maker"`
	OfferAsset  string `json:"offerAsset"`
	OfferAmount string `json:"offerAmount"`
	WantAsset   string `json:"wantAsset"`
	WantAmount  string `json:"wantAmount"`
	FeeAsset    string `json:"feeAsset"`
	FeeAmount   string `json:"feeAmount"`
	Nonce       uint64 `json:"nonce"`
	Signature   string `json:"signature"`
}

func (w wireOrder) decode() (broker.Order, error) {
	var order broker.Order
	maker, err := parseAddress(w.Maker)
	if err != nil {
		return order, err
	}
	offerAmount, err := parseAmount(w.OfferAmount)
	if err != nil {
		return order, err
	}
	wantAmount, err := parseAmount(w.WantAmount)
	if err != nil {
		return order, err
	}
	feeAmount, err := parseAmount(w.FeeAmount)
	if err != nil {
		return order, err
	}
	sig, err := parseHexBytes(w.Signature)
	if err != nil {
		return order, err
	}
	return broker.Order{
		Maker:       maker,
		OfferAsset:  w.OfferAsset,
		OfferAmount: offerAmount,
		WantAsset:   w.WantAsset,
		WantAmount:  wantAmount,
		FeeAsset:    w.FeeAsset,
		FeeAmount:   feeAmount,
		Nonce:       w.Nonce,
		Signature:   sig,
	}, nil
}

func decodeOrders(wires []wireOrder) ([]broker.Order, error) {
	orders := make([]broker.Order, len(wires))
	for i, w := range wires {
		order, err := w.decode()
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		orders[i] = order
	}
	return orders, nil
}

type wireMatch struct {
	OfferIndex int    `json:"offerIndex"`
	FillIndex  int    `json:"fillIndex"`
	TakeAmount string `json:"takeAmount"`
}

type wireNetworkMatch struct {
	OfferIndex int    `json:"offerIndex"`
	TakeAmount string `json:"takeAmount"`
	Venue      string `json:"venue"`
	Data       string `json:"data"`
}

type wireSwap struct {
	Maker        string `json:"maker"`
	Taker        string `json:"taker"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	HashedSecret string `json:"hashedSecret"`
	Expiry       int64  `json:"expiry"`
	FeeAsset     string `json:"feeAsset"`
	FeeAmount    string `json:"feeAmount"`
	Nonce        uint64 `json:"nonce"`
	Signature    string `json:"signature"`
}

func (w wireSwap) decode() (*swap.Swap, error) {
	maker, err := parseAddress(w.Maker)
	if err != nil {
		return nil, err
	}
	taker, err := parseAddress(w.Taker)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(w.Amount)
	if err != nil {
		return nil, err
	}
	feeAmount, err := parseAmount(w.FeeAmount)
	if err != nil {
		return nil, err
	}
	hashed, err := parseHash(w.HashedSecret)
	if err != nil {
		return nil, err
	}
	sig, err := parseHexBytes(w.Signature)
	if err != nil {
		return nil, err
	}
	return &swap.Swap{
		Maker:        maker,
		Taker:        taker,
		Asset:        w.Asset,
		Amount:       amount,
		HashedSecret: hashed,
		Expiry:       w.Expiry,
		FeeAsset:     w.FeeAsset,
		FeeAmount:    feeAmount,
		Nonce:        w.Nonce,
		Signature:    sig,
	}, nil
}

type wireWithdraw struct {
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	FeeAsset  string `json:"feeAsset"`
	FeeAmount string `json:"feeAmount"`
	Operator  string `json:"operator"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

func (w wireWithdraw) decode() (*ledger.WithdrawRequest, error) {
	account, err := parseAddress(w.Account)
	if err != nil {
		return nil, err
	}
	operator, err := parseAddress(w.Operator)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(w.Amount)
	if err != nil {
		return nil, err
	}
	feeAmount, err := parseAmount(w.FeeAmount)
	if err != nil {
		return nil, err
	}
	sig, err := parseHexBytes(w.Signature)
	if err != nil {
		return nil, err
	}
	return &ledger.WithdrawRequest{
		Account:   account,
		Asset:     w.Asset,
		Amount:    amount,
		FeeAsset:  w.FeeAsset,
		FeeAmount: feeAmount,
		Operator:  operator,
		Nonce:     w.Nonce,
		Signature: sig,
	}, nil
}

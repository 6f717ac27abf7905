package broker

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"settlenet/core/types"
)

const (
	EventTypeTradeMatched      = "broker.trade_matched"
	EventTypeNetworkTrade      = "broker.network_trade"
	EventTypeOfferCancelled    = "broker.offer_cancelled"
	EventTypeCancelAnnounced   = "broker.cancel_announced"
	EventTypeSpenderAuthorized = "broker.spender_authorized"
	EventTypeSpenderRevoked    = "broker.spender_revoked"
	EventTypeFrozen            = "broker.frozen"
	EventTypeUnfrozen          = "broker.unfrozen"
	EventTypeEmergencyWithdraw = "broker.emergency_withdraw"
)

type brokerEvent struct {
	evt *types.Event
}

func (e brokerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e brokerEvent) Event() *types.Event { return e.evt }

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewTradeMatchedEvent summarises one settled match between an offer and a
// fill. Hashes identify the orders without repeating their terms.
func NewTradeMatchedEvent(offerHash, fillHash [32]byte, take, owed *big.Int) *types.Event {
	return &types.Event{Type: EventTypeTradeMatched, Attributes: map[string]string{
		"offer": hex.EncodeToString(offerHash[:]),
		"fill":  hex.EncodeToString(fillHash[:]),
		"take":  amountAttr(take),
		"owed":  amountAttr(owed),
	}}
}

// NewNetworkTradeEvent summarises one offer leg routed through an external
// venue, including the surplus retained by the operator.
func NewNetworkTradeEvent(offerHash [32]byte, venue string, take, owed, received *big.Int) *types.Event {
	surplus := big.NewInt(0)
	if received != nil && owed != nil {
		surplus = new(big.Int).Sub(received, owed)
	}
	return &types.Event{Type: EventTypeNetworkTrade, Attributes: map[string]string{
		"offer":    hex.EncodeToString(offerHash[:]),
		"venue":    venue,
		"take":     amountAttr(take),
		"owed":     amountAttr(owed),
		"received": amountAttr(received),
		"surplus":  amountAttr(surplus),
	}}
}

// NewOfferCancelledEvent records a refunded cancellation.
func NewOfferCancelledEvent(offerHash [32]byte, refunded, fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeOfferCancelled, Attributes: map[string]string{
		"offer":    hex.EncodeToString(offerHash[:]),
		"refunded": amountAttr(refunded),
		"fee":      amountAttr(fee),
	}}
}

// NewCancelAnnouncedEvent records the start of a slow-cancel window.
func NewCancelAnnouncedEvent(offerHash [32]byte, at int64) *types.Event {
	return &types.Event{Type: EventTypeCancelAnnounced, Attributes: map[string]string{
		"offer": hex.EncodeToString(offerHash[:]),
		"at":    strconv.FormatInt(at, 10),
	}}
}

// NewSpenderEvent records a spender grant or revocation.
func NewSpenderEvent(eventType string, owner, spender [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"owner":   hex.EncodeToString(owner[:]),
		"spender": hex.EncodeToString(spender[:]),
	}}
}

// NewFreezeEvent records a freeze flag transition.
func NewFreezeEvent(eventType string, caller [20]byte) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"caller": hex.EncodeToString(caller[:]),
	}}
}

// NewEmergencyWithdrawEvent records an owner-initiated forced withdrawal.
func NewEmergencyWithdrawEvent(account [20]byte, asset string, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeEmergencyWithdraw, Attributes: map[string]string{
		"account": hex.EncodeToString(account[:]),
		"asset":   asset,
		"amount":  amountAttr(amount),
	}}
}

package swap

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"settlenet/core/types"
)

const (
	EventTypeSwapCreated         = "swap.created"
	EventTypeSwapExecuted        = "swap.executed"
	EventTypeSwapCancelled       = "swap.cancelled"
	EventTypeSwapCancelAnnounced = "swap.cancel_announced"
)

type swapEvent struct {
	evt *types.Event
}

func (e swapEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e swapEvent) Event() *types.Event { return e.evt }

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewSwapCreatedEvent records a newly locked swap.
func NewSwapCreatedEvent(hash [32]byte, maker, taker [20]byte, asset string, amount *big.Int, expiry int64) *types.Event {
	return &types.Event{Type: EventTypeSwapCreated, Attributes: map[string]string{
		"swap":   hex.EncodeToString(hash[:]),
		"maker":  hex.EncodeToString(maker[:]),
		"taker":  hex.EncodeToString(taker[:]),
		"asset":  asset,
		"amount": amountAttr(amount),
		"expiry": strconv.FormatInt(expiry, 10),
	}}
}

// NewSwapExecutedEvent records a successful claim.
func NewSwapExecutedEvent(hash [32]byte, taker [20]byte, asset string, net, fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeSwapExecuted, Attributes: map[string]string{
		"swap":  hex.EncodeToString(hash[:]),
		"taker": hex.EncodeToString(taker[:]),
		"asset": asset,
		"net":   amountAttr(net),
		"fee":   amountAttr(fee),
	}}
}

// NewSwapCancelledEvent records a refunded cancellation.
func NewSwapCancelledEvent(hash [32]byte, refunded, fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeSwapCancelled, Attributes: map[string]string{
		"swap":     hex.EncodeToString(hash[:]),
		"refunded": amountAttr(refunded),
		"fee":      amountAttr(fee),
	}}
}

// NewSwapCancelAnnouncedEvent records the start of a slow-cancel window.
func NewSwapCancelAnnouncedEvent(hash [32]byte, at int64) *types.Event {
	return &types.Event{Type: EventTypeSwapCancelAnnounced, Attributes: map[string]string{
		"swap": hex.EncodeToString(hash[:]),
		"at":   strconv.FormatInt(at, 10),
	}}
}

package ledger

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"settlenet/core/types"
)

const (
	EventTypeBalanceChange = "ledger.balance_change"
	EventTypeDeposit       = "ledger.deposit"
	EventTypeWithdraw      = "ledger.withdraw"
)

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// NewBalanceChangeEvent returns the canonical record emitted for every ledger
// mutation. Delta carries a sign so the full ledger can be reconstructed from
// the event stream alone.
func NewBalanceChangeEvent(account [20]byte, asset string, delta *big.Int, reason Reason, nonce uint64) *types.Event {
	attrs := map[string]string{
		"account": hex.EncodeToString(account[:]),
		"asset":   asset,
		"delta":   "0",
		"reason":  string(reason),
		"nonce":   strconv.FormatUint(nonce, 10),
	}
	if delta != nil {
		attrs["delta"] = delta.String()
	}
	return &types.Event{Type: EventTypeBalanceChange, Attributes: attrs}
}

// NewDepositEvent summarises a completed boundary deposit.
func NewDepositEvent(account [20]byte, asset string, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"account": hex.EncodeToString(account[:]),
		"asset":   asset,
		"amount":  "0",
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypeDeposit, Attributes: attrs}
}

// NewWithdrawEvent summarises a completed boundary withdrawal.
func NewWithdrawEvent(account [20]byte, asset string, amount, fee *big.Int, nonce uint64) *types.Event {
	attrs := map[string]string{
		"account": hex.EncodeToString(account[:]),
		"asset":   asset,
		"amount":  "0",
		"fee":     "0",
		"nonce":   strconv.FormatUint(nonce, 10),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	if fee != nil {
		attrs["fee"] = fee.String()
	}
	return &types.Event{Type: EventTypeWithdraw, Attributes: attrs}
}

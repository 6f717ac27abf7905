package ledger

import (
	"fmt"
	"strings"
)

// Reason tags every balance mutation so an external auditor can reconstruct
// the ledger from the event stream alone.
type Reason string

const (
	ReasonDeposit        Reason = "deposit"
	ReasonWithdraw       Reason = "withdraw"
	ReasonWithdrawFee    Reason = "withdraw.fee"
	ReasonTradeGive      Reason = "trade.give"
	ReasonTradeReceive   Reason = "trade.receive"
	ReasonTradeFee       Reason = "trade.fee"
	ReasonTradeSurplus   Reason = "trade.surplus"
	ReasonCancelRefund   Reason = "cancel.refund"
	ReasonCancelFee      Reason = "cancel.fee"
	ReasonNetworkGive    Reason = "network.give"
	ReasonNetworkReceive Reason = "network.receive"
	ReasonSwapLock       Reason = "swap.lock"
	ReasonSwapRelease    Reason = "swap.release"
	ReasonSwapFee        Reason = "swap.fee"
	ReasonSwapRefund     Reason = "swap.refund"
	ReasonEmergency      Reason = "emergency.withdraw"
)

// Valid reports whether the reason is one of the supported codes.
func (r Reason) Valid() bool {
	switch r {
	case ReasonDeposit, ReasonWithdraw, ReasonWithdrawFee,
		ReasonTradeGive, ReasonTradeReceive, ReasonTradeFee, ReasonTradeSurplus,
		ReasonCancelRefund, ReasonCancelFee,
		ReasonNetworkGive, ReasonNetworkReceive,
		ReasonSwapLock, ReasonSwapRelease, ReasonSwapFee, ReasonSwapRefund,
		ReasonEmergency:
		return true
	default:
		return false
	}
}

// NormalizeAsset validates an asset symbol and returns its canonical
// uppercase form. Symbols are restricted to letters and digits so they can be
// embedded in state keys and event attributes unambiguously.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("ledger: asset symbol required")
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("ledger: invalid asset symbol %q", symbol)
		}
	}
	return trimmed, nil
}

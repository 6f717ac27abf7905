package broker

import (
	"errors"
	"fmt"
	"math/big"

	"settlenet/native/auth"
	"settlenet/native/ledger"
	"settlenet/observability"
)

var (
	// ErrVenueShortfall indicates an external venue returned less than the
	// maker is owed. The whole batch is aborted rather than socialising the
	// shortfall.
	ErrVenueShortfall = errors.New("broker: venue returned less than owed")
	// ErrUnknownVenue indicates a match names a venue that is not registered.
	ErrUnknownVenue = errors.New("broker: unknown venue")
)

// VenueAdapter bridges to an external liquidity source. Execute trades
// amountIn of assetIn for assetOut and returns the amount actually received;
// the opaque data blob carries venue-specific routing parameters.
type VenueAdapter interface {
	Quote(assetIn string, amountIn *big.Int, assetOut string) (*big.Int, error)
	Execute(assetIn string, amountIn *big.Int, assetOut string, minAmountOut *big.Int, data []byte) (*big.Int, error)
}

// RegisterVenue makes an adapter addressable from network trade batches.
func (e *Engine) RegisterVenue(name string, adapter VenueAdapter) {
	if e == nil || adapter == nil || name == "" {
		return
	}
	if e.venues == nil {
		e.venues = make(map[string]VenueAdapter)
	}
	e.venues[name] = adapter
}

// NetworkTrade settles offers against external venues instead of signed
// fills. Each match sends part of an offer's escrowed give-asset to a venue;
// the maker is paid exactly what their limit price owes and any surplus the
// venue returns beyond that accrues to the operator.
func (e *Engine) NetworkTrade(batch *NetworkBatch) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireUnfrozen(); err != nil {
		return err
	}
	if batch == nil || len(batch.Offers) == 0 || len(batch.Matches) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidBatch)
	}
	if batch.Operator != e.operator {
		return fmt.Errorf("%w: operator mismatch", ErrInvalidBatch)
	}
	offers, hashes, err := e.sanitizeOrders(batch.Offers, auth.OfferDomainV1)
	if err != nil {
		return err
	}
	// Validation completes for the whole batch before the first venue call.
	for _, m := range batch.Matches {
		if m.OfferIndex < 0 || m.OfferIndex >= len(offers) {
			return fmt.Errorf("%w: offer index out of range", ErrInvalidBatch)
		}
		if m.TakeAmount == nil || m.TakeAmount.Sign() <= 0 {
			return fmt.Errorf("%w: take amount must be positive", ErrInvalidBatch)
		}
		if _, ok := e.venues[m.Venue]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownVenue, m.Venue)
		}
	}
	for _, m := range batch.Matches {
		if err := e.settleNetworkMatch(offers[m.OfferIndex], hashes[m.OfferIndex], e.venues[m.Venue], m); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) settleNetworkMatch(offer *Order, hash [32]byte, venue VenueAdapter, m NetworkMatch) error {
	if err := e.reserveOrder(offer, hash); err != nil {
		return err
	}
	owed := mulDiv(m.TakeAmount, offer.WantAmount, offer.OfferAmount)
	if owed.Sign() <= 0 {
		return fmt.Errorf("%w: take amount too small to price", ErrInvalidBatch)
	}
	if err := e.consumeAvailability(hash, m.TakeAmount); err != nil {
		return err
	}
	// The give leg leaves the system entirely; the venue's return re-enters
	// through escrow before distribution.
	if err := e.ledger.Decrease(EscrowAccount, offer.OfferAsset, m.TakeAmount, ledger.ReasonNetworkGive, offer.Nonce); err != nil {
		return err
	}
	received, err := venue.Execute(offer.OfferAsset, m.TakeAmount, offer.WantAsset, owed, m.Data)
	observability.Settlement().RecordVenueCall(m.Venue, err)
	if err != nil {
		return fmt.Errorf("broker: venue %q: %w", m.Venue, err)
	}
	if received == nil || received.Cmp(owed) < 0 {
		return ErrVenueShortfall
	}
	if err := e.ledger.Increase(EscrowAccount, offer.WantAsset, received, ledger.ReasonNetworkReceive, offer.Nonce); err != nil {
		return err
	}
	fee := mulDiv(offer.FeeAmount, m.TakeAmount, offer.OfferAmount)
	if err := e.payOut(offer.Maker, offer.WantAsset, owed, offer.FeeAsset, fee, offer.Nonce); err != nil {
		return err
	}
	surplus := new(big.Int).Sub(received, owed)
	if surplus.Sign() > 0 {
		if err := e.ledger.Transfer(EscrowAccount, e.operator, offer.WantAsset, surplus, ledger.ReasonTradeSurplus, ledger.ReasonTradeSurplus, offer.Nonce); err != nil {
			return err
		}
	}
	e.emit(NewNetworkTradeEvent(hash, m.Venue, m.TakeAmount, owed, received))
	return nil
}

package broker

import (
	"errors"
	"fmt"
	"math/big"

	"settlenet/native/auth"
	"settlenet/native/ledger"
)

var (
	// ErrNotAnnounced indicates a slow cancel was attempted without a prior
	// announcement.
	ErrNotAnnounced = errors.New("broker: cancellation not announced")
	// ErrDelayNotElapsed indicates the announced cancellation window is still
	// open.
	ErrDelayNotElapsed = errors.New("broker: cancellation delay not elapsed")
)

// Cancel immediately refunds an offer's remaining availability to its maker.
// The instruction is signed with its own nonce and may carry a fee, capped at
// the offer's declared fee amount, which accrues to the operator.
func (e *Engine) Cancel(offer *Order, feeAmount *big.Int, nonce uint64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	order, hash, avail, err := e.lookupOffer(offer)
	if err != nil {
		return err
	}
	fee := big.NewInt(0)
	if feeAmount != nil {
		if feeAmount.Sign() < 0 {
			return fmt.Errorf("broker: cancel fee must be non-negative")
		}
		fee = new(big.Int).Set(feeAmount)
	}
	if fee.Cmp(order.FeeAmount) > 0 {
		return fmt.Errorf("broker: cancel fee exceeds declared fee amount")
	}
	digest, err := auth.CancelDigest(hash, fee, nonce)
	if err != nil {
		return err
	}
	if err := e.verifier.Authorize(digest, sig, order.Maker, nonce); err != nil {
		return err
	}
	return e.refund(order, hash, avail, fee)
}

// AnnounceCancel opens the slow-cancellation window for an offer. The
// announcement is idempotent: repeating it keeps the original announcement
// time, so the window cannot be reset.
func (e *Engine) AnnounceCancel(offer *Order, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	order, hash, _, err := e.lookupOffer(offer)
	if err != nil {
		return err
	}
	digest, err := auth.AnnounceCancelDigest(hash)
	if err != nil {
		return err
	}
	if err := e.verifier.Verify(digest, sig, order.Maker); err != nil {
		return err
	}
	if _, announced, err := e.state.CancelAnnouncementGet(hash); err != nil {
		return err
	} else if announced {
		return nil
	}
	now := e.nowFn()
	if err := e.state.CancelAnnouncementSet(hash, now); err != nil {
		return err
	}
	e.emit(NewCancelAnnouncedEvent(hash, now))
	return nil
}

// SlowCancel refunds an announced offer once the delay has elapsed. It needs
// no signature and charges no fee: the refund can only go to the maker, so
// anyone may trigger it.
func (e *Engine) SlowCancel(offer *Order) error {
	if err := e.ready(); err != nil {
		return err
	}
	order, hash, avail, err := e.lookupOffer(offer)
	if err != nil {
		return err
	}
	announcedAt, announced, err := e.state.CancelAnnouncementGet(hash)
	if err != nil {
		return err
	}
	if !announced {
		return ErrNotAnnounced
	}
	if e.nowFn() < announcedAt+e.cancelDelay {
		return ErrDelayNotElapsed
	}
	return e.refund(order, hash, avail, big.NewInt(0))
}

func (e *Engine) lookupOffer(offer *Order) (*Order, [32]byte, *big.Int, error) {
	order, err := SanitizeOrder(offer)
	if err != nil {
		return nil, [32]byte{}, nil, err
	}
	hash, err := order.Hash(auth.OfferDomainV1)
	if err != nil {
		return nil, [32]byte{}, nil, err
	}
	avail, ok, err := e.state.AvailabilityGet(hash)
	if err != nil {
		return nil, [32]byte{}, nil, err
	}
	if !ok {
		return nil, [32]byte{}, nil, ErrOfferNotFound
	}
	return order, hash, avail, nil
}

// refund releases the remaining availability back to the maker, retaining the
// cancel fee for the operator. A fee in the escrowed asset is taken out of the
// refund itself; any other fee asset is debited from the maker's balance.
func (e *Engine) refund(order *Order, hash [32]byte, avail *big.Int, fee *big.Int) error {
	refunded := new(big.Int).Set(avail)
	if fee.Sign() > 0 {
		if order.FeeAsset == order.OfferAsset {
			if fee.Cmp(avail) > 0 {
				return fmt.Errorf("broker: cancel fee exceeds remaining availability")
			}
			refunded.Sub(refunded, fee)
			if err := e.ledger.Transfer(EscrowAccount, e.operator, order.FeeAsset, fee, ledger.ReasonCancelFee, ledger.ReasonCancelFee, order.Nonce); err != nil {
				return err
			}
		} else {
			if err := e.ledger.Transfer(order.Maker, e.operator, order.FeeAsset, fee, ledger.ReasonCancelFee, ledger.ReasonCancelFee, order.Nonce); err != nil {
				return err
			}
		}
	}
	if refunded.Sign() > 0 {
		if err := e.ledger.Transfer(EscrowAccount, order.Maker, order.OfferAsset, refunded, ledger.ReasonCancelRefund, ledger.ReasonCancelRefund, order.Nonce); err != nil {
			return err
		}
	}
	if err := e.state.AvailabilitySet(hash, big.NewInt(0)); err != nil {
		return err
	}
	if err := e.state.CancelAnnouncementClear(hash); err != nil {
		return err
	}
	e.emit(NewOfferCancelledEvent(hash, refunded, fee))
	return nil
}

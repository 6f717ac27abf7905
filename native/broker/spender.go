package broker

import (
	"fmt"
	"math/big"

	"settlenet/native/auth"
	"settlenet/native/ledger"
)

// AuthorizeSpender grants spender the right to sign instructions on behalf of
// owner. The grant is directional and signed by the owner.
func (e *Engine) AuthorizeSpender(owner, spender [20]byte, nonce uint64, sig []byte) error {
	return e.setSpender(auth.SpenderAuthorizeDomainV1, owner, spender, nonce, sig, true)
}

// UnauthorizeSpender revokes a previously granted spender right.
func (e *Engine) UnauthorizeSpender(owner, spender [20]byte, nonce uint64, sig []byte) error {
	return e.setSpender(auth.SpenderRevokeDomainV1, owner, spender, nonce, sig, false)
}

func (e *Engine) setSpender(domain string, owner, spender [20]byte, nonce uint64, sig []byte, authorized bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if owner == spender {
		return fmt.Errorf("broker: owner and spender must differ")
	}
	digest, err := auth.SpenderDigest(domain, owner, spender, nonce)
	if err != nil {
		return err
	}
	if err := e.verifier.Authorize(digest, sig, owner, nonce); err != nil {
		return err
	}
	if err := e.state.SpenderSetAuthorized(owner, spender, authorized); err != nil {
		return err
	}
	eventType := EventTypeSpenderAuthorized
	if !authorized {
		eventType = EventTypeSpenderRevoked
	}
	e.emit(NewSpenderEvent(eventType, owner, spender))
	return nil
}

// Freeze halts trading, withdrawals and swap creation. Only the owner may
// flip the flag.
func (e *Engine) Freeze(caller [20]byte) error {
	return e.setFrozen(caller, true)
}

// Unfreeze resumes normal operation.
func (e *Engine) Unfreeze(caller [20]byte) error {
	return e.setFrozen(caller, false)
}

func (e *Engine) setFrozen(caller [20]byte, frozen bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.owner {
		return ErrNotOwner
	}
	if err := e.state.SetTradingFrozen(frozen); err != nil {
		return err
	}
	eventType := EventTypeFrozen
	if !frozen {
		eventType = EventTypeUnfrozen
	}
	e.emit(NewFreezeEvent(eventType, caller))
	return nil
}

// EmergencyWithdraw force-releases an account's entire balance in one asset.
// It is only available while trading is frozen and only to the owner, as the
// escape hatch when normal signed withdrawals cannot proceed.
func (e *Engine) EmergencyWithdraw(caller, account [20]byte, asset string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.ledger == nil {
		return nil, errNilLedger
	}
	if caller != e.owner {
		return nil, ErrNotOwner
	}
	frozen, err := e.state.TradingFrozen()
	if err != nil {
		return nil, err
	}
	if !frozen {
		return nil, fmt.Errorf("broker: emergency withdrawal requires trading frozen")
	}
	normalized, err := ledger.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	balance, err := e.ledger.Balance(account, normalized)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.ledger.Decrease(account, normalized, balance, ledger.ReasonEmergency, 0); err != nil {
		return nil, err
	}
	e.emit(NewEmergencyWithdrawEvent(account, normalized, balance))
	return balance, nil
}

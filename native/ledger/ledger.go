package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"settlenet/core/events"
	"settlenet/core/types"
	"settlenet/native/auth"
)

var (
	// ErrInsufficientBalance indicates a debit exceeded the current balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrFrozen indicates the emergency freeze blocks the operation.
	ErrFrozen = errors.New("ledger: trading frozen")

	errNilState    = errors.New("ledger: state not configured")
	errNilVerifier = errors.New("ledger: verifier not configured")
)

type ledgerState interface {
	BalanceGet(account [20]byte, asset string) (*big.Int, error)
	BalanceSet(account [20]byte, asset string, amount *big.Int) error
	SpenderAuthorized(owner, spender [20]byte) (bool, error)
	TradingFrozen() (bool, error)
}

type authorizer interface {
	Recover(digest [32]byte, sig []byte) ([20]byte, error)
	Authorize(digest [32]byte, sig []byte, signer [20]byte, nonce uint64) error
}

// Ledger is the authoritative mapping of (account, asset) to a non-negative
// amount. Every state change flows through Increase and Decrease, each tagged
// with a reason code and mirrored as a balance-change event.
type Ledger struct {
	state    ledgerState
	emitter  events.Emitter
	verifier authorizer
	operator [20]byte
}

// New creates a ledger with a no-op emitter.
func New() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetVerifier configures the authorization verifier used for withdrawals.
func (l *Ledger) SetVerifier(v authorizer) { l.verifier = v }

// SetOperator configures the fee-collecting operator account.
func (l *Ledger) SetOperator(operator [20]byte) { l.operator = operator }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: evt})
}

// Operator returns the configured fee-collecting account.
func (l *Ledger) Operator() [20]byte { return l.operator }

// Balance returns the current amount held by account in asset.
func (l *Ledger) Balance(account [20]byte, asset string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return l.state.BalanceGet(account, normalized)
}

// Increase credits amount to the (account, asset) balance and records the
// mutation under the supplied reason.
func (l *Ledger) Increase(account [20]byte, asset string, amount *big.Int, reason Reason, nonce uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if !reason.Valid() {
		return fmt.Errorf("ledger: unknown reason %q", reason)
	}
	balance, err := l.state.BalanceGet(account, normalized)
	if err != nil {
		return err
	}
	if err := l.state.BalanceSet(account, normalized, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emit(NewBalanceChangeEvent(account, normalized, amount, reason, nonce))
	return nil
}

// Decrease debits amount from the (account, asset) balance, failing with
// ErrInsufficientBalance when the amount exceeds what is held.
func (l *Ledger) Decrease(account [20]byte, asset string, amount *big.Int, reason Reason, nonce uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if err := validateAmount(amount); err != nil {
		return err
	}
	if !reason.Valid() {
		return fmt.Errorf("ledger: unknown reason %q", reason)
	}
	balance, err := l.state.BalanceGet(account, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.BalanceSet(account, normalized, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	l.emit(NewBalanceChangeEvent(account, normalized, new(big.Int).Neg(amount), reason, nonce))
	return nil
}

// Transfer performs a paired decrease and increase.
func (l *Ledger) Transfer(from, to [20]byte, asset string, amount *big.Int, reasonOut, reasonIn Reason, nonce uint64) error {
	if err := l.Decrease(from, asset, amount, reasonOut, nonce); err != nil {
		return err
	}
	return l.Increase(to, asset, amount, reasonIn, nonce)
}

// Deposit credits funds arriving from an external asset source. The received
// amount is reconciled separately from the declared amount to tolerate
// transfer-fee-bearing assets: only what actually arrived is credited.
func (l *Ledger) Deposit(account [20]byte, asset string, declared, received *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	if err := validateAmount(declared); err != nil {
		return err
	}
	if err := validateAmount(received); err != nil {
		return err
	}
	if received.Cmp(declared) > 0 {
		return fmt.Errorf("ledger: received amount exceeds declared deposit")
	}
	if err := l.Increase(account, normalized, received, ReasonDeposit, 0); err != nil {
		return err
	}
	l.emit(NewDepositEvent(account, normalized, received))
	return nil
}

// WithdrawRequest is a signed instruction to move funds across the ledger
// boundary. The signature must come from the account itself or from an
// authorized spender.
type WithdrawRequest struct {
	Account   [20]byte
	Asset     string
	Amount    *big.Int
	FeeAsset  string
	FeeAmount *big.Int
	Operator  [20]byte
	Nonce     uint64
	Signature []byte
}

// Withdraw debits the full amount from the account. When the fee asset equals
// the withdrawn asset the fee is retained out of the leaving amount; otherwise
// it is debited separately from the account's general balance. Either way the
// fee is credited to the configured operator.
func (l *Ledger) Withdraw(req *WithdrawRequest) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if l.verifier == nil {
		return errNilVerifier
	}
	if req == nil {
		return fmt.Errorf("ledger: nil withdraw request")
	}
	frozen, err := l.state.TradingFrozen()
	if err != nil {
		return err
	}
	if frozen {
		return ErrFrozen
	}
	asset, err := NormalizeAsset(req.Asset)
	if err != nil {
		return err
	}
	feeAsset, err := NormalizeAsset(req.FeeAsset)
	if err != nil {
		return err
	}
	if err := validateAmount(req.Amount); err != nil {
		return err
	}
	fee := big.NewInt(0)
	if req.FeeAmount != nil {
		if req.FeeAmount.Sign() < 0 {
			return fmt.Errorf("ledger: fee must be non-negative")
		}
		fee = new(big.Int).Set(req.FeeAmount)
	}
	if req.Operator != l.operator {
		return fmt.Errorf("ledger: operator mismatch")
	}
	if feeAsset == asset && fee.Cmp(req.Amount) > 0 {
		return fmt.Errorf("ledger: fee exceeds withdrawal amount")
	}
	digest, err := auth.WithdrawDigest(req.Account, asset, req.Amount, feeAsset, fee, req.Operator, req.Nonce)
	if err != nil {
		return err
	}
	signer, err := l.verifier.Recover(digest, req.Signature)
	if err != nil {
		return err
	}
	if signer != req.Account {
		authorized, err := l.state.SpenderAuthorized(req.Account, signer)
		if err != nil {
			return err
		}
		if !authorized {
			return auth.ErrSignerMismatch
		}
	}
	if err := l.verifier.Authorize(digest, req.Signature, signer, req.Nonce); err != nil {
		return err
	}
	if err := l.Decrease(req.Account, asset, req.Amount, ReasonWithdraw, req.Nonce); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		if feeAsset == asset {
			if err := l.Increase(l.operator, feeAsset, fee, ReasonWithdrawFee, req.Nonce); err != nil {
				return err
			}
		} else {
			if err := l.Transfer(req.Account, l.operator, feeAsset, fee, ReasonWithdrawFee, ReasonWithdrawFee, req.Nonce); err != nil {
				return err
			}
		}
	}
	l.emit(NewWithdrawEvent(req.Account, asset, req.Amount, fee, req.Nonce))
	return nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("ledger: amount must be positive")
	}
	return nil
}

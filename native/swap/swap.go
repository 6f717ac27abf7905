package swap

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"settlenet/core/events"
	"settlenet/core/types"
	"settlenet/native/auth"
	"settlenet/native/ledger"
)

var (
	// ErrAlreadyActive indicates a swap with identical terms is already open.
	ErrAlreadyActive = errors.New("swap: already active")
	// ErrNotActive indicates the swap hash has no open swap behind it.
	ErrNotActive = errors.New("swap: not active")
	// ErrSecretMismatch indicates the revealed secret does not hash to the
	// committed value.
	ErrSecretMismatch = errors.New("swap: secret mismatch")
	// ErrExpired indicates the claim window has closed.
	ErrExpired = errors.New("swap: expired")
	// ErrNotExpired indicates a cancellation was attempted before expiry.
	ErrNotExpired = errors.New("swap: not yet expired")
	// ErrNotAnnounced indicates a slow cancel without a prior announcement.
	ErrNotAnnounced = errors.New("swap: cancellation not announced")
	// ErrDelayNotElapsed indicates the announced window is still open.
	ErrDelayNotElapsed = errors.New("swap: cancellation delay not elapsed")
	// ErrFrozen indicates the emergency freeze blocks the operation.
	ErrFrozen = errors.New("swap: trading frozen")

	errNilState    = errors.New("swap: state not configured")
	errNilLedger   = errors.New("swap: ledger not configured")
	errNilVerifier = errors.New("swap: verifier not configured")
)

// EscrowAccount holds locked swap funds between creation and resolution.
var EscrowAccount = moduleAccount("settlenet/swap/escrow")

func moduleAccount(tag string) [20]byte {
	var account [20]byte
	sum := ethcrypto.Keccak256([]byte(tag))
	copy(account[:], sum[12:])
	return account
}

// Swap describes a hash-locked transfer from maker to taker. The swap is
// identified by the hash of these terms; only an active flag is stored, so
// the terms are re-supplied and re-validated on every call.
type Swap struct {
	Maker        [20]byte
	Taker        [20]byte
	Asset        string
	Amount       *big.Int
	HashedSecret [32]byte
	Expiry       int64
	FeeAsset     string
	FeeAmount    *big.Int
	Nonce        uint64
	Signature    []byte
}

// Clone returns a deep copy of the swap.
func (s *Swap) Clone() *Swap {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Amount != nil {
		clone.Amount = new(big.Int).Set(s.Amount)
	}
	if s.FeeAmount != nil {
		clone.FeeAmount = new(big.Int).Set(s.FeeAmount)
	} else {
		clone.FeeAmount = big.NewInt(0)
	}
	clone.Signature = append([]byte(nil), s.Signature...)
	return &clone
}

// Hash returns the swap's content hash, which doubles as the digest the maker
// signs.
func (s *Swap) Hash() ([32]byte, error) {
	if s == nil {
		return [32]byte{}, fmt.Errorf("swap: nil swap")
	}
	return auth.SwapDigest(s.Maker, s.Taker, s.Asset, s.Amount, s.HashedSecret, s.Expiry, s.FeeAsset, s.FeeAmount, s.Nonce)
}

type swapState interface {
	SwapActive(hash [32]byte) (bool, error)
	SwapSetActive(hash [32]byte, active bool) error
	SwapAnnouncementGet(hash [32]byte) (int64, bool, error)
	SwapAnnouncementSet(hash [32]byte, at int64) error
	SwapAnnouncementClear(hash [32]byte) error
	TradingFrozen() (bool, error)
}

type balanceBook interface {
	Transfer(from, to [20]byte, asset string, amount *big.Int, reasonOut, reasonIn ledger.Reason, nonce uint64) error
}

type authorizer interface {
	Verify(digest [32]byte, sig []byte, signer [20]byte) error
	Authorize(digest [32]byte, sig []byte, signer [20]byte, nonce uint64) error
}

// Engine runs the hash-locked swap state machine. The committed secret hash
// uses sha256 by default; the hash function is injectable so deployments can
// interoperate with chains using a different lock function.
type Engine struct {
	state       swapState
	ledger      balanceBook
	verifier    authorizer
	emitter     events.Emitter
	nowFn       func() int64
	hashFn      func([]byte) [32]byte
	operator    [20]byte
	cancelDelay int64
}

// New creates a swap engine with sha256 secret hashing, a no-op emitter and
// wall-clock time.
func New() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		hashFn:  func(secret []byte) [32]byte { return sha256.Sum256(secret) },
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state swapState) { e.state = state }

// SetLedger configures the balance book.
func (e *Engine) SetLedger(book balanceBook) { e.ledger = book }

// SetVerifier configures the authorization verifier.
func (e *Engine) SetVerifier(v authorizer) { e.verifier = v }

// SetOperator configures the fee-collecting operator account.
func (e *Engine) SetOperator(operator [20]byte) { e.operator = operator }

// SetCancelDelay configures the announced-cancellation delay in seconds.
func (e *Engine) SetCancelDelay(seconds int64) {
	if seconds < 0 {
		seconds = 0
	}
	e.cancelDelay = seconds
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

// SetHashFunc overrides the secret hash function.
func (e *Engine) SetHashFunc(fn func([]byte) [32]byte) {
	if fn == nil {
		fn = func(secret []byte) [32]byte { return sha256.Sum256(secret) }
	}
	e.hashFn = fn
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(swapEvent{evt: evt})
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.verifier == nil {
		return errNilVerifier
	}
	return nil
}

func (e *Engine) sanitize(s *Swap) (*Swap, [32]byte, error) {
	if s == nil {
		return nil, [32]byte{}, fmt.Errorf("swap: nil swap")
	}
	clone := s.Clone()
	asset, err := ledger.NormalizeAsset(clone.Asset)
	if err != nil {
		return nil, [32]byte{}, err
	}
	feeAsset, err := ledger.NormalizeAsset(clone.FeeAsset)
	if err != nil {
		return nil, [32]byte{}, err
	}
	if clone.Amount == nil || clone.Amount.Sign() <= 0 {
		return nil, [32]byte{}, fmt.Errorf("swap: amount must be positive")
	}
	if clone.FeeAmount.Sign() < 0 {
		return nil, [32]byte{}, fmt.Errorf("swap: fee must be non-negative")
	}
	if clone.FeeAmount.Sign() > 0 && feeAsset != asset {
		return nil, [32]byte{}, fmt.Errorf("swap: fee asset must match the locked asset")
	}
	if clone.FeeAmount.Cmp(clone.Amount) > 0 {
		return nil, [32]byte{}, fmt.Errorf("swap: fee exceeds locked amount")
	}
	if clone.Maker == clone.Taker {
		return nil, [32]byte{}, fmt.Errorf("swap: maker and taker must differ")
	}
	clone.Asset = asset
	clone.FeeAsset = feeAsset
	hash, err := clone.Hash()
	if err != nil {
		return nil, [32]byte{}, err
	}
	return clone, hash, nil
}

// Create opens a swap: the maker's signature is checked, the nonce consumed
// and the full amount locked in escrow until the taker reveals the secret or
// the swap expires.
func (e *Engine) Create(s *Swap) error {
	if err := e.ready(); err != nil {
		return err
	}
	frozen, err := e.state.TradingFrozen()
	if err != nil {
		return err
	}
	if frozen {
		return ErrFrozen
	}
	swap, hash, err := e.sanitize(s)
	if err != nil {
		return err
	}
	if swap.Expiry <= e.nowFn() {
		return fmt.Errorf("swap: expiry must be in the future")
	}
	active, err := e.state.SwapActive(hash)
	if err != nil {
		return err
	}
	if active {
		return ErrAlreadyActive
	}
	if err := e.verifier.Authorize(hash, swap.Signature, swap.Maker, swap.Nonce); err != nil {
		return err
	}
	if err := e.ledger.Transfer(swap.Maker, EscrowAccount, swap.Asset, swap.Amount, ledger.ReasonSwapLock, ledger.ReasonSwapLock, swap.Nonce); err != nil {
		return err
	}
	if err := e.state.SwapSetActive(hash, true); err != nil {
		return err
	}
	e.emit(NewSwapCreatedEvent(hash, swap.Maker, swap.Taker, swap.Asset, swap.Amount, swap.Expiry))
	return nil
}

// Execute releases the locked amount to the taker against the revealed
// secret. The fee portion accrues to the operator. Execution is only valid
// while the swap is unexpired and still active; the active flag is cleared so
// a second execution or a later cancel finds nothing.
func (e *Engine) Execute(s *Swap, secret []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	swap, hash, err := e.sanitize(s)
	if err != nil {
		return err
	}
	active, err := e.state.SwapActive(hash)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotActive
	}
	if e.nowFn() >= swap.Expiry {
		return ErrExpired
	}
	if e.hashFn(secret) != swap.HashedSecret {
		return ErrSecretMismatch
	}
	net := new(big.Int).Sub(swap.Amount, swap.FeeAmount)
	if net.Sign() > 0 {
		if err := e.ledger.Transfer(EscrowAccount, swap.Taker, swap.Asset, net, ledger.ReasonSwapRelease, ledger.ReasonSwapRelease, swap.Nonce); err != nil {
			return err
		}
	}
	if swap.FeeAmount.Sign() > 0 {
		if err := e.ledger.Transfer(EscrowAccount, e.operator, swap.Asset, swap.FeeAmount, ledger.ReasonSwapFee, ledger.ReasonSwapFee, swap.Nonce); err != nil {
			return err
		}
	}
	if err := e.state.SwapSetActive(hash, false); err != nil {
		return err
	}
	if err := e.state.SwapAnnouncementClear(hash); err != nil {
		return err
	}
	e.emit(NewSwapExecutedEvent(hash, swap.Taker, swap.Asset, net, swap.FeeAmount))
	return nil
}

// Cancel refunds an expired swap to its maker. The instruction is signed by
// the maker and may carry a fee, capped at the swap's declared fee amount.
func (e *Engine) Cancel(s *Swap, cancelFee *big.Int, nonce uint64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	swap, hash, err := e.sanitize(s)
	if err != nil {
		return err
	}
	active, err := e.state.SwapActive(hash)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotActive
	}
	if e.nowFn() < swap.Expiry {
		return ErrNotExpired
	}
	fee := big.NewInt(0)
	if cancelFee != nil {
		if cancelFee.Sign() < 0 {
			return fmt.Errorf("swap: cancel fee must be non-negative")
		}
		fee = new(big.Int).Set(cancelFee)
	}
	if fee.Cmp(swap.FeeAmount) > 0 {
		return fmt.Errorf("swap: cancel fee exceeds declared fee amount")
	}
	digest, err := auth.CancelDigest(hash, fee, nonce)
	if err != nil {
		return err
	}
	if err := e.verifier.Authorize(digest, sig, swap.Maker, nonce); err != nil {
		return err
	}
	return e.refund(swap, hash, fee)
}

// AnnounceCancel opens the slow-cancellation window for a swap. No signature
// is required: the eventual refund can only reach the maker, so a stranded
// maker key never strands the escrow. Idempotent: the first announcement time
// is retained.
func (e *Engine) AnnounceCancel(s *Swap) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, hash, err := e.sanitize(s)
	if err != nil {
		return err
	}
	active, err := e.state.SwapActive(hash)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotActive
	}
	if _, announced, err := e.state.SwapAnnouncementGet(hash); err != nil {
		return err
	} else if announced {
		return nil
	}
	now := e.nowFn()
	if err := e.state.SwapAnnouncementSet(hash, now); err != nil {
		return err
	}
	e.emit(NewSwapCancelAnnouncedEvent(hash, now))
	return nil
}

// SlowCancel refunds an announced, expired swap without a signature or fee
// once the delay has elapsed. Together with the unsigned announcement this is
// the reclamation path of last resort for makers who can no longer sign.
func (e *Engine) SlowCancel(s *Swap) error {
	if err := e.ready(); err != nil {
		return err
	}
	swap, hash, err := e.sanitize(s)
	if err != nil {
		return err
	}
	active, err := e.state.SwapActive(hash)
	if err != nil {
		return err
	}
	if !active {
		return ErrNotActive
	}
	if e.nowFn() < swap.Expiry {
		return ErrNotExpired
	}
	announcedAt, announced, err := e.state.SwapAnnouncementGet(hash)
	if err != nil {
		return err
	}
	if !announced {
		return ErrNotAnnounced
	}
	if e.nowFn() < announcedAt+e.cancelDelay {
		return ErrDelayNotElapsed
	}
	return e.refund(swap, hash, big.NewInt(0))
}

func (e *Engine) refund(swap *Swap, hash [32]byte, fee *big.Int) error {
	refunded := new(big.Int).Sub(swap.Amount, fee)
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(EscrowAccount, e.operator, swap.Asset, fee, ledger.ReasonCancelFee, ledger.ReasonCancelFee, swap.Nonce); err != nil {
			return err
		}
	}
	if refunded.Sign() > 0 {
		if err := e.ledger.Transfer(EscrowAccount, swap.Maker, swap.Asset, refunded, ledger.ReasonSwapRefund, ledger.ReasonSwapRefund, swap.Nonce); err != nil {
			return err
		}
	}
	if err := e.state.SwapSetActive(hash, false); err != nil {
		return err
	}
	if err := e.state.SwapAnnouncementClear(hash); err != nil {
		return err
	}
	e.emit(NewSwapCancelledEvent(hash, refunded, fee))
	return nil
}

// Active reports whether a swap with the supplied terms is currently open.
func (e *Engine) Active(s *Swap) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, hash, err := e.sanitize(s)
	if err != nil {
		return false, err
	}
	return e.state.SwapActive(hash)
}

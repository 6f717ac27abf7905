package broker

import (
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
	// ErrInvalidBatch indicates a structurally invalid trade batch.
	ErrInvalidBatch = errors.New("broker: invalid batch")
	// ErrOverdraw indicates a match takes more than the order's remaining
	// available amount.
	ErrOverdraw = errors.New("broker: take exceeds available amount")
	// ErrOfferNotFound indicates no availability exists under the offer hash.
	ErrOfferNotFound = errors.New("broker: offer not found")
	// ErrFrozen indicates the emergency freeze blocks the operation.
	ErrFrozen = errors.New("broker: trading frozen")
	// ErrNotOwner indicates the caller lacks the owner capability.
	ErrNotOwner = errors.New("broker: caller is not the owner")

	errNilState    = errors.New("broker: state not configured")
	errNilLedger   = errors.New("broker: ledger not configured")
	errNilVerifier = errors.New("broker: verifier not configured")
)

// EscrowAccount holds reserved order funds between reservation and payout.
// It is a module account derived from a fixed tag, so no key exists for it.
var EscrowAccount = moduleAccount("settlenet/broker/escrow")

func moduleAccount(tag string) [20]byte {
	var account [20]byte
	sum := ethcrypto.Keccak256([]byte(tag))
	copy(account[:], sum[12:])
	return account
}

type brokerState interface {
	AvailabilityGet(hash [32]byte) (*big.Int, bool, error)
	AvailabilitySet(hash [32]byte, amount *big.Int) error
	CancelAnnouncementGet(hash [32]byte) (int64, bool, error)
	CancelAnnouncementSet(hash [32]byte, at int64) error
	CancelAnnouncementClear(hash [32]byte) error
	SpenderSetAuthorized(owner, spender [20]byte, authorized bool) error
	TradingFrozen() (bool, error)
	SetTradingFrozen(frozen bool) error
}

type balanceBook interface {
	Balance(account [20]byte, asset string) (*big.Int, error)
	Increase(account [20]byte, asset string, amount *big.Int, reason ledger.Reason, nonce uint64) error
	Decrease(account [20]byte, asset string, amount *big.Int, reason ledger.Reason, nonce uint64) error
	Transfer(from, to [20]byte, asset string, amount *big.Int, reasonOut, reasonIn ledger.Reason, nonce uint64) error
}

type authorizer interface {
	Verify(digest [32]byte, sig []byte, signer [20]byte) error
	Authorize(digest [32]byte, sig []byte, signer [20]byte, nonce uint64) error
}

// Engine settles signed orders against each other and against external
// liquidity venues. Orders are identified purely by content hash; the engine
// stores only each order's remaining available amount, reserving the give-side
// funds in escrow the first time an order is seen.
type Engine struct {
	state       brokerState
	ledger      balanceBook
	verifier    authorizer
	emitter     events.Emitter
	nowFn       func() int64
	operator    [20]byte
	owner       [20]byte
	cancelDelay int64
	venues      map[string]VenueAdapter
}

// New creates a broker engine with a no-op emitter and wall-clock time.
func New() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		venues:  make(map[string]VenueAdapter),
	}
}

// SetState configures the state backend.
func (e *Engine) SetState(state brokerState) { e.state = state }

// SetLedger configures the balance book debits and credits flow through.
func (e *Engine) SetLedger(book balanceBook) { e.ledger = book }

// SetVerifier configures the authorization verifier.
func (e *Engine) SetVerifier(v authorizer) { e.verifier = v }

// SetOperator configures the account batches must name and fees accrue to.
func (e *Engine) SetOperator(operator [20]byte) { e.operator = operator }

// SetOwner configures the administrative owner account.
func (e *Engine) SetOwner(owner [20]byte) { e.owner = owner }

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

// SetNowFunc overrides the time source used for cancellation windows.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(brokerEvent{evt: evt})
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

func (e *Engine) requireUnfrozen() error {
	frozen, err := e.state.TradingFrozen()
	if err != nil {
		return err
	}
	if frozen {
		return ErrFrozen
	}
	return nil
}

// Availability returns the remaining unconsumed amount of an order hash.
// Exhausted or unknown orders report ok=false.
func (e *Engine) Availability(hash [32]byte) (*big.Int, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	return e.state.AvailabilityGet(hash)
}

// Trade settles a batch of matches between offers and fills. Orders are
// reserved on first sighting: the signature is checked, the nonce consumed and
// the full give-side amount moved into escrow. Later sightings only re-verify
// the signature against the stored availability.
func (e *Engine) Trade(batch *TradeBatch) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.requireUnfrozen(); err != nil {
		return err
	}
	if batch == nil || len(batch.Offers) == 0 || len(batch.Fills) == 0 || len(batch.Matches) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidBatch)
	}
	if batch.Operator != e.operator {
		return fmt.Errorf("%w: operator mismatch", ErrInvalidBatch)
	}
	offers, offerHashes, err := e.sanitizeOrders(batch.Offers, auth.OfferDomainV1)
	if err != nil {
		return err
	}
	fills, fillHashes, err := e.sanitizeOrders(batch.Fills, auth.FillDomainV1)
	if err != nil {
		return err
	}
	// The whole batch is validated before any match settles, so a structural
	// defect in a later match cannot leave earlier matches half-applied.
	for _, m := range batch.Matches {
		if m.OfferIndex < 0 || m.OfferIndex >= len(offers) {
			return fmt.Errorf("%w: offer index out of range", ErrInvalidBatch)
		}
		if m.FillIndex < 0 || m.FillIndex >= len(fills) {
			return fmt.Errorf("%w: fill index out of range", ErrInvalidBatch)
		}
		if m.TakeAmount == nil || m.TakeAmount.Sign() <= 0 {
			return fmt.Errorf("%w: take amount must be positive", ErrInvalidBatch)
		}
		offer := offers[m.OfferIndex]
		fill := fills[m.FillIndex]
		if fill.OfferAsset != offer.WantAsset || fill.WantAsset != offer.OfferAsset {
			return fmt.Errorf("%w: offer and fill assets do not pair", ErrInvalidBatch)
		}
	}
	for _, m := range batch.Matches {
		if err := e.settleMatch(offers[m.OfferIndex], offerHashes[m.OfferIndex], fills[m.FillIndex], fillHashes[m.FillIndex], m.TakeAmount); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sanitizeOrders(orders []Order, domain string) ([]*Order, [][32]byte, error) {
	sanitized := make([]*Order, len(orders))
	hashes := make([][32]byte, len(orders))
	for i := range orders {
		order, err := SanitizeOrder(&orders[i])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
		if i > 0 && order.Nonce <= sanitized[i-1].Nonce {
			return nil, nil, fmt.Errorf("%w: nonces must be strictly ascending", ErrInvalidBatch)
		}
		hash, err := order.Hash(domain)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidBatch, err)
		}
		sanitized[i] = order
		hashes[i] = hash
	}
	return sanitized, hashes, nil
}

func (e *Engine) settleMatch(offer *Order, offerHash [32]byte, fill *Order, fillHash [32]byte, take *big.Int) error {
	if err := e.reserveOrder(offer, offerHash); err != nil {
		return err
	}
	if err := e.reserveOrder(fill, fillHash); err != nil {
		return err
	}
	// The amount owed to the maker at the offer's limit price, rounded down.
	// Residue from the truncation stays with the taker side of each leg.
	owed := mulDiv(take, offer.WantAmount, offer.OfferAmount)
	if owed.Sign() <= 0 {
		return fmt.Errorf("%w: take amount too small to price", ErrInvalidBatch)
	}
	if err := e.consumeAvailability(offerHash, take); err != nil {
		return err
	}
	if err := e.consumeAvailability(fillHash, owed); err != nil {
		return err
	}
	offerFee := mulDiv(offer.FeeAmount, take, offer.OfferAmount)
	fillFee := mulDiv(fill.FeeAmount, owed, fill.OfferAmount)
	if err := e.payOut(offer.Maker, offer.WantAsset, owed, offer.FeeAsset, offerFee, offer.Nonce); err != nil {
		return err
	}
	if err := e.payOut(fill.Maker, fill.WantAsset, take, fill.FeeAsset, fillFee, fill.Nonce); err != nil {
		return err
	}
	e.emit(NewTradeMatchedEvent(offerHash, fillHash, take, owed))
	return nil
}

// reserveOrder brings an order into existence on first sighting: it consumes
// the maker's nonce and escrows the full give-side amount. An order whose
// availability already exists only has its signature re-verified.
func (e *Engine) reserveOrder(order *Order, hash [32]byte) error {
	_, exists, err := e.state.AvailabilityGet(hash)
	if err != nil {
		return err
	}
	if exists {
		return e.verifier.Verify(hash, order.Signature, order.Maker)
	}
	if err := e.verifier.Authorize(hash, order.Signature, order.Maker, order.Nonce); err != nil {
		return err
	}
	if err := e.ledger.Transfer(order.Maker, EscrowAccount, order.OfferAsset, order.OfferAmount, ledger.ReasonTradeGive, ledger.ReasonTradeGive, order.Nonce); err != nil {
		return err
	}
	return e.state.AvailabilitySet(hash, order.OfferAmount)
}

func (e *Engine) consumeAvailability(hash [32]byte, amount *big.Int) error {
	avail, ok, err := e.state.AvailabilityGet(hash)
	if err != nil {
		return err
	}
	if !ok || avail.Cmp(amount) < 0 {
		return ErrOverdraw
	}
	return e.state.AvailabilitySet(hash, new(big.Int).Sub(avail, amount))
}

// payOut releases gross escrowed funds to the recipient. When the fee asset
// matches the receive asset the fee is retained out of the gross amount;
// otherwise the recipient's general balance funds it. Fees accrue to the
// operator.
func (e *Engine) payOut(to [20]byte, asset string, gross *big.Int, feeAsset string, fee *big.Int, nonce uint64) error {
	if fee == nil {
		fee = big.NewInt(0)
	}
	if feeAsset == asset {
		if fee.Cmp(gross) > 0 {
			return fmt.Errorf("%w: fee exceeds receipt", ErrInvalidBatch)
		}
		net := new(big.Int).Sub(gross, fee)
		if net.Sign() > 0 {
			if err := e.ledger.Transfer(EscrowAccount, to, asset, net, ledger.ReasonTradeGive, ledger.ReasonTradeReceive, nonce); err != nil {
				return err
			}
		}
		if fee.Sign() > 0 {
			return e.ledger.Transfer(EscrowAccount, e.operator, feeAsset, fee, ledger.ReasonTradeFee, ledger.ReasonTradeFee, nonce)
		}
		return nil
	}
	if err := e.ledger.Transfer(EscrowAccount, to, asset, gross, ledger.ReasonTradeGive, ledger.ReasonTradeReceive, nonce); err != nil {
		return err
	}
	if fee.Sign() > 0 {
		return e.ledger.Transfer(to, e.operator, feeAsset, fee, ledger.ReasonTradeFee, ledger.ReasonTradeFee, nonce)
	}
	return nil
}

// mulDiv computes floor(a * num / den). Callers guarantee den is positive.
func mulDiv(a, num, den *big.Int) *big.Int {
	if a == nil || num == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, num)
	return product.Quo(product, den)
}

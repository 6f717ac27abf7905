package broker

import (
	"errors"
	"math/big"
	"testing"

	"settlenet/core/events"
	"settlenet/crypto"
	"settlenet/native/auth"
	"settlenet/native/ledger"
	"settlenet/state"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func (c *capturingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range c.events {
		if evt.EventType() == eventType {
			n++
		}
	}
	return n
}

type env struct {
	engine   *Engine
	book     *ledger.Ledger
	store    *state.Store
	emitter  *capturingEmitter
	operator [20]byte
	owner    [20]byte
	now      int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := state.NewStore()
	nonces := ledger.NewNonceRegistry()
	nonces.SetState(store)
	verifier := auth.NewVerifier()
	verifier.SetNonces(nonces)
	emitter := &capturingEmitter{}

	operator := [20]byte{0xFE}
	owner := [20]byte{0xAD}

	book := ledger.New()
	book.SetState(store)
	book.SetVerifier(verifier)
	book.SetOperator(operator)
	book.SetEmitter(emitter)

	e := &env{store: store, book: book, emitter: emitter, operator: operator, owner: owner, now: 1000}
	engine := New()
	engine.SetState(store)
	engine.SetLedger(book)
	engine.SetVerifier(verifier)
	engine.SetOperator(operator)
	engine.SetOwner(owner)
	engine.SetCancelDelay(600)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return e.now })
	e.engine = engine
	return e
}

func (e *env) seed(t *testing.T, account [20]byte, asset string, amount int64) {
	t.Helper()
	if err := e.book.Increase(account, asset, big.NewInt(amount), ledger.ReasonDeposit, 0); err != nil {
		t.Fatalf("seed %s: %v", asset, err)
	}
}

func (e *env) balance(t *testing.T, account [20]byte, asset string) int64 {
	t.Helper()
	bal, err := e.book.Balance(account, asset)
	if err != nil {
		t.Fatalf("balance %s: %v", asset, err)
	}
	return bal.Int64()
}

// assetTotals sums every stored balance per asset, escrow included.
func (e *env) assetTotals() map[string]int64 {
	totals := make(map[string]int64)
	e.store.EachBalance(func(_ [20]byte, asset string, amount *big.Int) bool {
		totals[asset] += amount.Int64()
		return true
	})
	return totals
}

func newOrderKey(t *testing.T) (*crypto.PrivateKey, [20]byte) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, key.PubKey().Address().Bytes20()
}

func signedOrder(t *testing.T, key *crypto.PrivateKey, domain, offerAsset string, offerAmount int64, wantAsset string, wantAmount int64, feeAsset string, feeAmount int64, nonce uint64) Order {
	t.Helper()
	maker := key.PubKey().Address().Bytes20()
	digest, err := auth.OrderDigest(domain, maker, offerAsset, big.NewInt(offerAmount), wantAsset, big.NewInt(wantAmount), feeAsset, big.NewInt(feeAmount), nonce)
	if err != nil {
		t.Fatalf("order digest: %v", err)
	}
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign order: %v", err)
	}
	return Order{
		Maker:       maker,
		OfferAsset:  offerAsset,
		OfferAmount: big.NewInt(offerAmount),
		WantAsset:   wantAsset,
		WantAmount:  big.NewInt(wantAmount),
		FeeAsset:    feeAsset,
		FeeAmount:   big.NewInt(feeAmount),
		Nonce:       nonce,
		Signature:   sig,
	}
}

func TestTradePartialFillWithFee(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 1000)
	e.seed(t, filler, "BBB", 300)

	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 20, "AAA", 40, "AAA", 3, 1)
	batch := &TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{OfferIndex: 0, FillIndex: 0, TakeAmount: big.NewInt(40)}},
		Operator: e.operator,
	}
	if err := e.engine.Trade(batch); err != nil {
		t.Fatalf("trade: %v", err)
	}

	if got := e.balance(t, maker, "AAA"); got != 900 {
		t.Fatalf("maker AAA = %d, want 900", got)
	}
	if got := e.balance(t, maker, "BBB"); got != 20 {
		t.Fatalf("maker BBB = %d, want 20", got)
	}
	if got := e.balance(t, filler, "BBB"); got != 280 {
		t.Fatalf("filler BBB = %d, want 280", got)
	}
	if got := e.balance(t, filler, "AAA"); got != 37 {
		t.Fatalf("filler AAA = %d, want 37", got)
	}
	if got := e.balance(t, e.operator, "AAA"); got != 3 {
		t.Fatalf("operator AAA = %d, want 3", got)
	}
	if got := e.balance(t, EscrowAccount, "AAA"); got != 60 {
		t.Fatalf("escrow AAA = %d, want 60", got)
	}

	offerHash, err := (&offer).Hash(auth.OfferDomainV1)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	avail, ok, err := e.engine.Availability(offerHash)
	if err != nil || !ok || avail.Int64() != 60 {
		t.Fatalf("offer availability = %v ok=%v err=%v, want 60", avail, ok, err)
	}
	fillHash, err := (&fill).Hash(auth.FillDomainV1)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, ok, _ := e.engine.Availability(fillHash); ok {
		t.Fatalf("exhausted fill must read as non-existent")
	}

	totals := e.assetTotals()
	if totals["AAA"] != 1000 || totals["BBB"] != 300 {
		t.Fatalf("asset totals drifted: %v", totals)
	}
	if e.emitter.count(EventTypeTradeMatched) != 1 {
		t.Fatalf("expected 1 match event")
	}
}

func TestTradeLeftoverPersistsAcrossBatches(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	e.seed(t, filler, "BBB", 100)

	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	fill1 := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 30, "AAA", 60, "BBB", 0, 1)
	if err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill1},
		Matches:  []Match{{TakeAmount: big.NewInt(60)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("first batch: %v", err)
	}

	// The same offer settles again without a fresh nonce: only its signature
	// is re-verified against the stored availability.
	fill2 := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 30, "AAA", 60, "BBB", 0, 2)
	if err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill2},
		Matches:  []Match{{TakeAmount: big.NewInt(40)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if got := e.balance(t, maker, "BBB"); got != 50 {
		t.Fatalf("maker BBB = %d, want 50", got)
	}
	if got := e.balance(t, filler, "AAA"); got != 100 {
		t.Fatalf("filler AAA = %d, want 100", got)
	}

	// Exhausted offers read as non-existent; referencing one again replays
	// the maker nonce and fails.
	fill3 := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 10, "AAA", 20, "BBB", 0, 3)
	err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill3},
		Matches:  []Match{{TakeAmount: big.NewInt(10)}},
		Operator: e.operator,
	})
	if !errors.Is(err, auth.ErrNonceReused) && !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected exhausted offer rejection, got %v", err)
	}
}

func TestTradeTruncatesOwedDown(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 10)
	e.seed(t, filler, "BBB", 10)

	// 10 AAA for 3 BBB; taking 5 AAA owes floor(5*3/10) = 1 BBB.
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 10, "BBB", 3, "BBB", 0, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 5, "AAA", 5, "AAA", 0, 1)
	if err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{TakeAmount: big.NewInt(5)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if got := e.balance(t, maker, "BBB"); got != 1 {
		t.Fatalf("maker BBB = %d, want floor-truncated 1", got)
	}
	if got := e.balance(t, filler, "AAA"); got != 5 {
		t.Fatalf("filler AAA = %d, want 5", got)
	}
	totals := e.assetTotals()
	if totals["AAA"] != 10 || totals["BBB"] != 10 {
		t.Fatalf("asset totals drifted: %v", totals)
	}
}

func TestTradeBatchValidation(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	e.seed(t, filler, "BBB", 100)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 50, "AAA", 100, "BBB", 0, 1)

	cases := []struct {
		name  string
		batch *TradeBatch
	}{
		{"nil batch", nil},
		{"no fills", &TradeBatch{Offers: []Order{offer}, Matches: []Match{{TakeAmount: big.NewInt(1)}}, Operator: e.operator}},
		{"operator mismatch", &TradeBatch{Offers: []Order{offer}, Fills: []Order{fill}, Matches: []Match{{TakeAmount: big.NewInt(1)}}, Operator: [20]byte{0x01}}},
		{"bad offer index", &TradeBatch{Offers: []Order{offer}, Fills: []Order{fill}, Matches: []Match{{OfferIndex: 3, TakeAmount: big.NewInt(1)}}, Operator: e.operator}},
		{"zero take", &TradeBatch{Offers: []Order{offer}, Fills: []Order{fill}, Matches: []Match{{TakeAmount: big.NewInt(0)}}, Operator: e.operator}},
		{"descending nonces", &TradeBatch{
			Offers:   []Order{offer, signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 10, "BBB", 5, "BBB", 0, 1)},
			Fills:    []Order{fill},
			Matches:  []Match{{TakeAmount: big.NewInt(1)}},
			Operator: e.operator,
		}},
		{"unpaired assets", &TradeBatch{
			Offers:   []Order{offer},
			Fills:    []Order{signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 50, "CCC", 100, "BBB", 0, 2)},
			Matches:  []Match{{TakeAmount: big.NewInt(1)}},
			Operator: e.operator,
		}},
	}
	for _, tc := range cases {
		if err := e.engine.Trade(tc.batch); !errors.Is(err, ErrInvalidBatch) {
			t.Fatalf("%s: expected ErrInvalidBatch, got %v", tc.name, err)
		}
	}
}

func TestTradeValidatesBatchBeforeSettling(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	e.seed(t, filler, "BBB", 100)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 50, "AAA", 100, "BBB", 0, 1)

	// The first match is well-formed; the second is structurally broken. The
	// defect must surface before the first match touches any balance.
	err := e.engine.Trade(&TradeBatch{
		Offers: []Order{offer},
		Fills:  []Order{fill},
		Matches: []Match{
			{OfferIndex: 0, FillIndex: 0, TakeAmount: big.NewInt(10)},
			{OfferIndex: 0, FillIndex: 7, TakeAmount: big.NewInt(10)},
		},
		Operator: e.operator,
	})
	if !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("expected ErrInvalidBatch, got %v", err)
	}
	if got := e.balance(t, maker, "AAA"); got != 100 {
		t.Fatalf("maker AAA = %d, want untouched 100", got)
	}
	if got := e.balance(t, EscrowAccount, "AAA"); got != 0 {
		t.Fatalf("escrow AAA = %d, want 0", got)
	}
	offerHash, err := offer.Hash(auth.OfferDomainV1)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, ok, _ := e.engine.Availability(offerHash); ok {
		t.Fatalf("no availability must be created by a rejected batch")
	}
}

func TestTradeOverdraw(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 200)
	e.seed(t, filler, "BBB", 200)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 100, "AAA", 200, "BBB", 0, 1)
	err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{TakeAmount: big.NewInt(101)}},
		Operator: e.operator,
	})
	if !errors.Is(err, ErrOverdraw) {
		t.Fatalf("expected ErrOverdraw, got %v", err)
	}
}

func TestTradeRejectsTamperedOrder(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	e.seed(t, filler, "BBB", 100)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	offer.WantAmount = big.NewInt(10) // better price than the maker signed
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 50, "AAA", 100, "BBB", 0, 1)
	err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{TakeAmount: big.NewInt(10)}},
		Operator: e.operator,
	})
	if !errors.Is(err, auth.ErrSignerMismatch) && !errors.Is(err, auth.ErrSignatureInvalid) {
		t.Fatalf("expected signature rejection, got %v", err)
	}
}

func TestTradeBlockedWhenFrozen(t *testing.T) {
	e := newEnv(t)
	if err := e.engine.Freeze(e.owner); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := e.engine.Trade(&TradeBatch{}); !errors.Is(err, ErrFrozen) {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
}

func TestCancelRefundsRemainder(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 110)
	e.seed(t, filler, "BBB", 100)

	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "AAA", 10, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 20, "AAA", 40, "BBB", 0, 1)
	if err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{TakeAmount: big.NewInt(40)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	// 100 reserved and a proportional trade fee of 4 charged, leaving 6.
	if got := e.balance(t, maker, "AAA"); got != 6 {
		t.Fatalf("maker AAA after trade = %d, want 6", got)
	}

	offerHash, _ := (&offer).Hash(auth.OfferDomainV1)
	digest, err := auth.CancelDigest(offerHash, big.NewInt(4), 2)
	if err != nil {
		t.Fatalf("cancel digest: %v", err)
	}
	sig, err := makerKey.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign cancel: %v", err)
	}
	if err := e.engine.Cancel(&offer, big.NewInt(4), 2, sig); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// 60 remained in escrow; the fee asset equals the escrowed asset, so the
	// maker gets 56 back and the operator keeps the cancel fee.
	if got := e.balance(t, maker, "AAA"); got != 62 {
		t.Fatalf("maker AAA = %d, want 62", got)
	}
	if got := e.balance(t, e.operator, "AAA"); got != 8 {
		t.Fatalf("operator AAA = %d, want 8", got)
	}
	if got := e.balance(t, EscrowAccount, "AAA"); got != 0 {
		t.Fatalf("escrow AAA = %d, want 0", got)
	}
	if _, ok, _ := e.engine.Availability(offerHash); ok {
		t.Fatalf("cancelled offer must read as non-existent")
	}
	if err := e.engine.Cancel(&offer, nil, 3, sig); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound on second cancel, got %v", err)
	}
	if e.emitter.count(EventTypeOfferCancelled) != 1 {
		t.Fatalf("expected 1 cancel event")
	}
}

func TestCancelFeeCap(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 110)
	e.seed(t, filler, "BBB", 100)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "AAA", 10, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 5, "AAA", 10, "BBB", 0, 1)
	if err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{TakeAmount: big.NewInt(10)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	offerHash, _ := (&offer).Hash(auth.OfferDomainV1)
	digest, _ := auth.CancelDigest(offerHash, big.NewInt(11), 2)
	sig, _ := makerKey.Sign(digest[:])
	if err := e.engine.Cancel(&offer, big.NewInt(11), 2, sig); err == nil {
		t.Fatalf("expected fee above declared amount to be rejected")
	}
}

func TestAnnounceAndSlowCancel(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	fillerKey, filler := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	e.seed(t, filler, "BBB", 100)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	fill := signedOrder(t, fillerKey, auth.FillDomainV1, "BBB", 10, "AAA", 20, "BBB", 0, 1)
	if err := e.engine.Trade(&TradeBatch{
		Offers:   []Order{offer},
		Fills:    []Order{fill},
		Matches:  []Match{{TakeAmount: big.NewInt(20)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("trade: %v", err)
	}

	if err := e.engine.SlowCancel(&offer); !errors.Is(err, ErrNotAnnounced) {
		t.Fatalf("expected ErrNotAnnounced, got %v", err)
	}

	offerHash, _ := (&offer).Hash(auth.OfferDomainV1)
	digest, _ := auth.AnnounceCancelDigest(offerHash)
	sig, err := makerKey.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := e.engine.AnnounceCancel(&offer, sig); err != nil {
		t.Fatalf("announce: %v", err)
	}
	announcedAt, ok, _ := e.store.CancelAnnouncementGet(offerHash)
	if !ok || announcedAt != 1000 {
		t.Fatalf("announcement time = %d ok=%v, want 1000", announcedAt, ok)
	}

	// Re-announcing later must not reset the window.
	e.now = 1300
	if err := e.engine.AnnounceCancel(&offer, sig); err != nil {
		t.Fatalf("re-announce: %v", err)
	}
	if at, _, _ := e.store.CancelAnnouncementGet(offerHash); at != 1000 {
		t.Fatalf("announcement time reset to %d", at)
	}

	if err := e.engine.SlowCancel(&offer); !errors.Is(err, ErrDelayNotElapsed) {
		t.Fatalf("expected ErrDelayNotElapsed, got %v", err)
	}
	e.now = 1600
	if err := e.engine.SlowCancel(&offer); err != nil {
		t.Fatalf("slow cancel: %v", err)
	}
	if got := e.balance(t, maker, "AAA"); got != 80 {
		t.Fatalf("maker AAA = %d, want 80", got)
	}
	if _, ok, _ := e.engine.Availability(offerHash); ok {
		t.Fatalf("offer must be gone after slow cancel")
	}
}

type stubVenue struct {
	received *big.Int
	err      error
	calls    int
}

func (v *stubVenue) Quote(assetIn string, amountIn *big.Int, assetOut string) (*big.Int, error) {
	return v.received, v.err
}

func (v *stubVenue) Execute(assetIn string, amountIn *big.Int, assetOut string, minAmountOut *big.Int, data []byte) (*big.Int, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.received, nil
}

func TestNetworkTradeSurplusToOperator(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	venue := &stubVenue{received: big.NewInt(27)}
	e.engine.RegisterVenue("amm", venue)

	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	if err := e.engine.NetworkTrade(&NetworkBatch{
		Offers:   []Order{offer},
		Matches:  []NetworkMatch{{Venue: "amm", TakeAmount: big.NewInt(50)}},
		Operator: e.operator,
	}); err != nil {
		t.Fatalf("network trade: %v", err)
	}
	// 50 AAA routed out; limit price owes 25 BBB; the venue returned 27.
	if got := e.balance(t, maker, "BBB"); got != 25 {
		t.Fatalf("maker BBB = %d, want 25", got)
	}
	if got := e.balance(t, e.operator, "BBB"); got != 2 {
		t.Fatalf("operator surplus = %d, want 2", got)
	}
	if got := e.balance(t, EscrowAccount, "AAA"); got != 50 {
		t.Fatalf("escrow AAA = %d, want 50", got)
	}
	if venue.calls != 1 {
		t.Fatalf("venue called %d times", venue.calls)
	}
	if e.emitter.count(EventTypeNetworkTrade) != 1 {
		t.Fatalf("expected 1 network trade event")
	}
}

func TestNetworkTradeShortfall(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	e.engine.RegisterVenue("amm", &stubVenue{received: big.NewInt(24)})

	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	err := e.engine.NetworkTrade(&NetworkBatch{
		Offers:   []Order{offer},
		Matches:  []NetworkMatch{{Venue: "amm", TakeAmount: big.NewInt(50)}},
		Operator: e.operator,
	})
	if !errors.Is(err, ErrVenueShortfall) {
		t.Fatalf("expected ErrVenueShortfall, got %v", err)
	}
}

func TestNetworkTradeUnknownVenue(t *testing.T) {
	e := newEnv(t)
	makerKey, maker := newOrderKey(t)
	e.seed(t, maker, "AAA", 100)
	offer := signedOrder(t, makerKey, auth.OfferDomainV1, "AAA", 100, "BBB", 50, "BBB", 0, 1)
	err := e.engine.NetworkTrade(&NetworkBatch{
		Offers:   []Order{offer},
		Matches:  []NetworkMatch{{Venue: "nope", TakeAmount: big.NewInt(1)}},
		Operator: e.operator,
	})
	if !errors.Is(err, ErrUnknownVenue) {
		t.Fatalf("expected ErrUnknownVenue, got %v", err)
	}
}

func TestSpenderGrantAndRevoke(t *testing.T) {
	e := newEnv(t)
	ownerKey, owner := newOrderKey(t)
	spender := [20]byte{0x33}

	digest, err := auth.SpenderDigest(auth.SpenderAuthorizeDomainV1, owner, spender, 1)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := ownerKey.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := e.engine.AuthorizeSpender(owner, spender, 1, sig); err != nil {
		t.Fatalf("authorize spender: %v", err)
	}
	authorized, err := e.store.SpenderAuthorized(owner, spender)
	if err != nil || !authorized {
		t.Fatalf("expected grant stored")
	}
	// The grant is directional.
	reverse, _ := e.store.SpenderAuthorized(spender, owner)
	if reverse {
		t.Fatalf("grant must not apply in reverse")
	}

	revoke, err := auth.SpenderDigest(auth.SpenderRevokeDomainV1, owner, spender, 2)
	if err != nil {
		t.Fatalf("revoke digest: %v", err)
	}
	revokeSig, err := ownerKey.Sign(revoke[:])
	if err != nil {
		t.Fatalf("sign revoke: %v", err)
	}
	if err := e.engine.UnauthorizeSpender(owner, spender, 2, revokeSig); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	authorized, _ = e.store.SpenderAuthorized(owner, spender)
	if authorized {
		t.Fatalf("expected grant revoked")
	}
}

func TestFreezeOwnerOnly(t *testing.T) {
	e := newEnv(t)
	if err := e.engine.Freeze([20]byte{0x01}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := e.engine.Freeze(e.owner); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	frozen, _ := e.store.TradingFrozen()
	if !frozen {
		t.Fatalf("expected frozen flag set")
	}
	if err := e.engine.Unfreeze(e.owner); err != nil {
		t.Fatalf("unfreeze: %v", err)
	}
	frozen, _ = e.store.TradingFrozen()
	if frozen {
		t.Fatalf("expected frozen flag cleared")
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	e := newEnv(t)
	account := [20]byte{0x07}
	e.seed(t, account, "AAA", 55)

	if _, err := e.engine.EmergencyWithdraw(e.owner, account, "AAA"); err == nil {
		t.Fatalf("expected rejection while not frozen")
	}
	if err := e.engine.Freeze(e.owner); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := e.engine.EmergencyWithdraw([20]byte{0x01}, account, "AAA"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	released, err := e.engine.EmergencyWithdraw(e.owner, account, "AAA")
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if released.Int64() != 55 {
		t.Fatalf("released %s, want 55", released)
	}
	if got := e.balance(t, account, "AAA"); got != 0 {
		t.Fatalf("account AAA = %d, want 0", got)
	}
	if e.emitter.count(EventTypeEmergencyWithdraw) != 1 {
		t.Fatalf("expected emergency withdraw event")
	}
}

package routes

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"settlenet/core/events"
	"settlenet/crypto"
	"settlenet/native/auth"
	"settlenet/native/broker"
	"settlenet/native/ledger"
	"settlenet/native/swap"
	"settlenet/state"
)

type testGateway struct {
	handler  http.Handler
	store    *state.Store
	book     *ledger.Ledger
	operator crypto.Address
	owner    crypto.Address
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	store := state.NewStore()
	nonces := ledger.NewNonceRegistry()
	nonces.SetState(store)
	verifier := auth.NewVerifier()
	verifier.SetNonces(nonces)
	queue := events.NewQueue()

	operator := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0xFE}, 20))
	owner := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0xAD}, 20))

	book := ledger.New()
	book.SetState(store)
	book.SetVerifier(verifier)
	book.SetOperator(operator.Bytes20())
	book.SetEmitter(queue)

	brokerEngine := broker.New()
	brokerEngine.SetState(store)
	brokerEngine.SetLedger(book)
	brokerEngine.SetVerifier(verifier)
	brokerEngine.SetOperator(operator.Bytes20())
	brokerEngine.SetOwner(owner.Bytes20())
	brokerEngine.SetEmitter(queue)

	swapEngine := swap.New()
	swapEngine.SetState(store)
	swapEngine.SetLedger(book)
	swapEngine.SetVerifier(verifier)
	swapEngine.SetOperator(operator.Bytes20())
	swapEngine.SetEmitter(queue)

	server := NewServer(nil, store, book, brokerEngine, swapEngine, queue, nil)
	handler := New(Config{Server: server})
	return &testGateway{handler: handler, store: store, book: book, operator: operator, owner: owner}
}

func (g *testGateway) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func (g *testGateway) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func TestGatewayDepositAndBalance(t *testing.T) {
	g := newTestGateway(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	account := key.PubKey().Address()

	rec := g.post(t, "/v1/deposit", map[string]string{
		"account":  account.String(),
		"asset":    "AAA",
		"declared": "100",
		"received": "97",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d body=%s", rec.Code, rec.Body)
	}

	rec = g.get(t, "/v1/balance/"+account.String()+"/AAA")
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["balance"] != "97" {
		t.Fatalf("balance = %q, want 97", body["balance"])
	}
}

func TestGatewayWithdrawFlow(t *testing.T) {
	g := newTestGateway(t)
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	account := key.PubKey().Address()
	if err := g.store.Transaction(func() error {
		return g.book.Increase(account.Bytes20(), "AAA", big.NewInt(100), ledger.ReasonDeposit, 0)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	digest, err := auth.WithdrawDigest(account.Bytes20(), "AAA", big.NewInt(40), "AAA", big.NewInt(5), g.operator.Bytes20(), 1)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	body := map[string]any{
		"account":   account.String(),
		"asset":     "AAA",
		"amount":    "40",
		"feeAsset":  "AAA",
		"feeAmount": "5",
		"operator":  g.operator.String(),
		"nonce":     1,
		"signature": hex.EncodeToString(sig),
	}
	rec := g.post(t, "/v1/withdraw", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw status = %d body=%s", rec.Code, rec.Body)
	}

	// Replay must surface as a conflict.
	rec = g.post(t, "/v1/withdraw", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay status = %d, want 409", rec.Code)
	}

	balance, err := g.book.Balance(account.Bytes20(), "AAA")
	if err != nil || balance.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance after withdraw = %s err=%v", balance, err)
	}
}

func TestGatewayErrorMapping(t *testing.T) {
	g := newTestGateway(t)

	// Unknown offer availability reads as not found.
	rec := g.get(t, "/v1/availability/"+hex.EncodeToString(make([]byte, 32)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("availability status = %d, want 404", rec.Code)
	}

	// Freeze requires the owner capability.
	outsider := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x09}, 20))
	rec = g.post(t, "/v1/admin/freeze", map[string]string{"caller": outsider.String()})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("freeze status = %d, want 403", rec.Code)
	}
	rec = g.post(t, "/v1/admin/freeze", map[string]string{"caller": g.owner.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner freeze status = %d body=%s", rec.Code, rec.Body)
	}

	// Trading is now locked.
	rec = g.post(t, "/v1/trade", tradePayload(g.operator.String()))
	if rec.Code != http.StatusLocked {
		t.Fatalf("frozen trade status = %d, want 423", rec.Code)
	}

	// Malformed addresses are rejected outright.
	rec = g.post(t, "/v1/deposit", map[string]string{"account": "garbage", "asset": "AAA", "declared": "1", "received": "1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status = %d, want 400", rec.Code)
	}
}

func tradePayload(operator string) map[string]any {
	order := map[string]any{
		"maker":       operator,
		"offerAsset":  "AAA",
		"offerAmount": "1",
		"wantAsset":   "BBB",
		"wantAmount":  "1",
		"feeAsset":    "BBB",
		"feeAmount":   "0",
		"nonce":       1,
		"signature":   fmt.Sprintf("%0130x", 0),
	}
	return map[string]any{
		"offers":   []any{order},
		"fills":    []any{order},
		"matches":  []any{map[string]any{"offerIndex": 0, "fillIndex": 0, "takeAmount": "1"}},
		"operator": operator,
	}
}

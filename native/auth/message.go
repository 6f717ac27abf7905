package auth

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Versioned domain separators. Hashing every instruction under its own domain
// prevents a signature from being replayed across deployments or message
// types.
const (
	WithdrawDomainV1         = "STL_WITHDRAW_V1"
	OfferDomainV1            = "STL_OFFER_V1"
	FillDomainV1             = "STL_FILL_V1"
	CancelDomainV1           = "STL_CANCEL_V1"
	AnnounceCancelDomainV1   = "STL_CANCEL_ANNOUNCE_V1"
	SpenderAuthorizeDomainV1 = "STL_SPENDER_AUTHORIZE_V1"
	SpenderRevokeDomainV1    = "STL_SPENDER_REVOKE_V1"
	SwapDomainV1             = "STL_SWAP_V1"
)

// payload accumulates a canonical binary encoding of a structured message.
// Variable-length fields are length-prefixed and amounts occupy full 256-bit
// words, so no two distinct field sequences share an encoding.
type payload struct {
	buf []byte
	err error
}

func newPayload(domain string) *payload {
	p := &payload{buf: make([]byte, 0, 160)}
	p.str(domain)
	return p
}

func (p *payload) str(s string) {
	if p.err != nil {
		return
	}
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
	p.buf = append(p.buf, lenBuf[:n]...)
	p.buf = append(p.buf, s...)
}

func (p *payload) addr(a [20]byte) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, a[:]...)
}

func (p *payload) hash(h [32]byte) {
	if p.err != nil {
		return
	}
	p.buf = append(p.buf, h[:]...)
}

func (p *payload) amount(v *big.Int) {
	if p.err != nil {
		return
	}
	if v == nil || v.Sign() < 0 {
		p.err = fmt.Errorf("auth: amount must be non-negative")
		return
	}
	word, overflow := uint256.FromBig(v)
	if overflow {
		p.err = fmt.Errorf("auth: amount exceeds 256 bits")
		return
	}
	encoded := word.Bytes32()
	p.buf = append(p.buf, encoded[:]...)
}

func (p *payload) u64(v uint64) {
	if p.err != nil {
		return
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	p.buf = append(p.buf, buf[:]...)
}

func (p *payload) i64(v int64) {
	p.u64(uint64(v))
}

func (p *payload) digest() ([32]byte, error) {
	if p.err != nil {
		return [32]byte{}, p.err
	}
	return ethcrypto.Keccak256Hash(p.buf), nil
}

// WithdrawDigest hashes a withdrawal instruction.
func WithdrawDigest(account [20]byte, asset string, amount *big.Int, feeAsset string, feeAmount *big.Int, operator [20]byte, nonce uint64) ([32]byte, error) {
	p := newPayload(WithdrawDomainV1)
	p.addr(account)
	p.str(asset)
	p.amount(amount)
	p.str(feeAsset)
	p.amount(feeAmount)
	p.addr(operator)
	p.u64(nonce)
	return p.digest()
}

// OrderDigest hashes an offer or fill under the supplied domain. The result
// doubles as the order's content hash: it is the key for the availability
// table, so re-supplied terms are implicitly re-validated on every reference.
func OrderDigest(domain string, maker [20]byte, offerAsset string, offerAmount *big.Int, wantAsset string, wantAmount *big.Int, feeAsset string, feeAmount *big.Int, nonce uint64) ([32]byte, error) {
	p := newPayload(domain)
	p.addr(maker)
	p.str(offerAsset)
	p.amount(offerAmount)
	p.str(wantAsset)
	p.amount(wantAmount)
	p.str(feeAsset)
	p.amount(feeAmount)
	p.u64(nonce)
	return p.digest()
}

// CancelDigest hashes an immediate-cancel instruction for an offer hash.
func CancelDigest(offerHash [32]byte, feeAmount *big.Int, nonce uint64) ([32]byte, error) {
	p := newPayload(CancelDomainV1)
	p.hash(offerHash)
	p.amount(feeAmount)
	p.u64(nonce)
	return p.digest()
}

// AnnounceCancelDigest hashes a cancellation announcement. Announcements are
// idempotent so they carry no nonce; replaying one cannot reset the window
// because only the first announcement time is retained.
func AnnounceCancelDigest(offerHash [32]byte) ([32]byte, error) {
	p := newPayload(AnnounceCancelDomainV1)
	p.hash(offerHash)
	return p.digest()
}

// SpenderDigest hashes a spender grant or revocation.
func SpenderDigest(domain string, owner, spender [20]byte, nonce uint64) ([32]byte, error) {
	p := newPayload(domain)
	p.addr(owner)
	p.addr(spender)
	p.u64(nonce)
	return p.digest()
}

// SwapDigest hashes an atomic swap descriptor. The result is the swap's
// content hash and the key for its active flag.
func SwapDigest(maker, taker [20]byte, asset string, amount *big.Int, hashedSecret [32]byte, expiry int64, feeAsset string, feeAmount *big.Int, nonce uint64) ([32]byte, error) {
	p := newPayload(SwapDomainV1)
	p.addr(maker)
	p.addr(taker)
	p.str(asset)
	p.amount(amount)
	p.hash(hashedSecret)
	p.i64(expiry)
	p.str(feeAsset)
	p.amount(feeAmount)
	p.u64(nonce)
	return p.digest()
}

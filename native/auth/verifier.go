package auth

import (
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrSignatureInvalid indicates the signature could not be recovered.
	ErrSignatureInvalid = errors.New("auth: signature invalid")
	// ErrSignerMismatch indicates the recovered signer differs from the claimed principal.
	ErrSignerMismatch = errors.New("auth: signer mismatch")
	// ErrNonceReused indicates the instruction nonce has already been consumed.
	ErrNonceReused = errors.New("auth: nonce reused")

	errNilNonces = errors.New("auth: nonce registry not configured")
)

type nonceConsumer interface {
	TryConsume(nonce uint64) (bool, error)
}

// Verifier validates that a signed message was produced by the claimed
// principal and, for replay-protected instructions, consumes the nonce in the
// same step so there is no verify/mark race.
type Verifier struct {
	nonces nonceConsumer
}

// NewVerifier constructs a verifier without a nonce registry. Verify works
// immediately; Authorize requires SetNonces first.
func NewVerifier() *Verifier { return &Verifier{} }

// SetNonces configures the replay-protection registry.
func (v *Verifier) SetNonces(nonces nonceConsumer) { v.nonces = nonces }

// Recover returns the account that produced the 65-byte signature over the
// digest.
func (v *Verifier) Recover(digest [32]byte, sig []byte) ([20]byte, error) {
	if len(sig) != 65 {
		return [20]byte{}, ErrSignatureInvalid
	}
	pubKey, err := ethcrypto.SigToPub(digest[:], sig)
	if err != nil {
		return [20]byte{}, ErrSignatureInvalid
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

// Verify checks the signature against the claimed signer without touching the
// nonce registry.
func (v *Verifier) Verify(digest [32]byte, sig []byte, signer [20]byte) error {
	recovered, err := v.Recover(digest, sig)
	if err != nil {
		return err
	}
	if recovered != signer {
		return ErrSignerMismatch
	}
	return nil
}

// Authorize verifies the signature and consumes the nonce atomically. A
// previously consumed nonce fails with ErrNonceReused and leaves no state
// change.
func (v *Verifier) Authorize(digest [32]byte, sig []byte, signer [20]byte, nonce uint64) error {
	if v == nil || v.nonces == nil {
		return errNilNonces
	}
	if err := v.Verify(digest, sig, signer); err != nil {
		return err
	}
	ok, err := v.nonces.TryConsume(nonce)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNonceReused
	}
	return nil
}

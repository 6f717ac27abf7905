package ledger

import "errors"

var errNilNonceState = errors.New("nonce registry: state not configured")

const nonceWordBits = 64

type nonceState interface {
	NonceWord(word uint64) (uint64, error)
	SetNonceWord(word, bits uint64) error
}

// NonceRegistry marks single-use instruction identifiers as consumed. Nonces
// are packed as single bits inside word-indexed entries, trading a small
// decode step for far lower amortised storage than one entry per nonce. A set
// bit is never cleared, which guarantees exactly-once execution of any signed
// instruction.
type NonceRegistry struct {
	state nonceState
}

// NewNonceRegistry constructs an unbound registry.
func NewNonceRegistry() *NonceRegistry { return &NonceRegistry{} }

// SetState configures the state backend.
func (r *NonceRegistry) SetState(state nonceState) { r.state = state }

// TryConsume atomically checks and sets the nonce bit. It reports false when
// the bit was already set, without error, so callers can map reuse onto their
// own failure mode.
func (r *NonceRegistry) TryConsume(nonce uint64) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilNonceState
	}
	word := nonce / nonceWordBits
	bit := uint64(1) << (nonce % nonceWordBits)
	bits, err := r.state.NonceWord(word)
	if err != nil {
		return false, err
	}
	if bits&bit != 0 {
		return false, nil
	}
	if err := r.state.SetNonceWord(word, bits|bit); err != nil {
		return false, err
	}
	return true, nil
}

// Consumed reports whether the nonce bit has been set.
func (r *NonceRegistry) Consumed(nonce uint64) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilNonceState
	}
	word := nonce / nonceWordBits
	bit := uint64(1) << (nonce % nonceWordBits)
	bits, err := r.state.NonceWord(word)
	if err != nil {
		return false, err
	}
	return bits&bit != 0, nil
}

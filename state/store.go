package state

import (
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"sync"
)

var (
	errNilStore     = errors.New("state: store not initialised")
	errNegativeSet  = errors.New("state: refusing to store negative amount")
	errEmptyAsset   = errors.New("state: asset symbol required")
	errBusyRollback = errors.New("state: nested transactions are not supported")
)

const (
	prefixBalance      = "bal/"
	prefixNonceWord    = "nonce/"
	prefixAvailability = "avail/"
	prefixSwapActive   = "swap/"
	prefixSpender      = "spender/"
	prefixCancelAnn    = "cancelann/"
	prefixSwapAnn      = "swapann/"
	keyTradingFrozen   = "frozen"
)

// Store exposes the typed settlement state on top of a journaled MemoryKV:
// balances, the nonce bitmap, offer/fill availability, swap flags, spender
// grants and the trading freeze switch. All tables are keyed by deterministic
// content hashes or (account, asset) pairs, so no surrogate ID allocation is
// required.
type Store struct {
	mu   sync.Mutex
	kv   *MemoryKV
	open bool
}

// NewStore returns a store backed by a fresh in-memory KV.
func NewStore() *Store {
	return &Store{kv: NewMemoryKV()}
}

// NewStoreWithKV wraps an existing memory store, typically one loaded from a
// Database at boot.
func NewStoreWithKV(kv *MemoryKV) *Store {
	if kv == nil {
		kv = NewMemoryKV()
	}
	return &Store{kv: kv}
}

// KV exposes the underlying memory store for persistence flushes.
func (s *Store) KV() *MemoryKV { return s.kv }

// Transaction serialises and executes fn with all-or-nothing semantics: any
// error reverts every write fn performed. This is the single write path for
// external calls, matching the strictly serialised execution model.
func (s *Store) Transaction(fn func() error) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return errBusyRollback
	}
	s.open = true
	defer func() { s.open = false }()
	mark := s.kv.Snapshot()
	if err := fn(); err != nil {
		s.kv.RevertTo(mark)
		return err
	}
	s.kv.DiscardJournal()
	return nil
}

func balanceKey(account [20]byte, asset string) []byte {
	key := make([]byte, 0, len(prefixBalance)+len(asset)+1+len(account))
	key = append(key, prefixBalance...)
	key = append(key, asset...)
	key = append(key, '/')
	key = append(key, account[:]...)
	return key
}

// BalanceGet returns the current balance for the (account, asset) pair. A
// missing entry reads as zero.
func (s *Store) BalanceGet(account [20]byte, asset string) (*big.Int, error) {
	if s == nil || s.kv == nil {
		return nil, errNilStore
	}
	if strings.TrimSpace(asset) == "" {
		return nil, errEmptyAsset
	}
	raw, ok := s.kv.Get(balanceKey(account, asset))
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetBytes(raw), nil
}

// BalanceSet stores the balance, removing the entry when it reaches zero.
func (s *Store) BalanceSet(account [20]byte, asset string, amount *big.Int) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	if strings.TrimSpace(asset) == "" {
		return errEmptyAsset
	}
	if amount == nil || amount.Sign() == 0 {
		s.kv.Delete(balanceKey(account, asset))
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeSet
	}
	s.kv.Put(balanceKey(account, asset), amount.Bytes())
	return nil
}

// EachBalance iterates every stored balance until fn returns false.
func (s *Store) EachBalance(fn func(account [20]byte, asset string, amount *big.Int) bool) {
	if s == nil || s.kv == nil {
		return
	}
	s.kv.Each(func(key, value []byte) bool {
		k := string(key)
		if !strings.HasPrefix(k, prefixBalance) {
			return true
		}
		rest := k[len(prefixBalance):]
		idx := strings.LastIndexByte(rest, '/')
		if idx < 0 || len(rest)-idx-1 != 20 {
			return true
		}
		var account [20]byte
		copy(account[:], rest[idx+1:])
		return fn(account, rest[:idx], new(big.Int).SetBytes(value))
	})
}

func nonceWordKey(word uint64) []byte {
	key := make([]byte, len(prefixNonceWord)+8)
	copy(key, prefixNonceWord)
	binary.BigEndian.PutUint64(key[len(prefixNonceWord):], word)
	return key
}

// NonceWord returns the bitmap word at the supplied index.
func (s *Store) NonceWord(word uint64) (uint64, error) {
	if s == nil || s.kv == nil {
		return 0, errNilStore
	}
	raw, ok := s.kv.Get(nonceWordKey(word))
	if !ok || len(raw) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// SetNonceWord stores the bitmap word at the supplied index.
func (s *Store) SetNonceWord(word, bits uint64) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	s.kv.Put(nonceWordKey(word), buf)
	return nil
}

func hashKey(prefix string, hash [32]byte) []byte {
	key := make([]byte, 0, len(prefix)+32)
	key = append(key, prefix...)
	key = append(key, hash[:]...)
	return key
}

// AvailabilityGet returns the remaining unconsumed amount stored under the
// offer/fill content hash. A missing entry is reported via ok=false; zero
// availability is never stored.
func (s *Store) AvailabilityGet(hash [32]byte) (*big.Int, bool, error) {
	if s == nil || s.kv == nil {
		return nil, false, errNilStore
	}
	raw, ok := s.kv.Get(hashKey(prefixAvailability, hash))
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).SetBytes(raw), true, nil
}

// AvailabilitySet stores the remaining amount, deleting the entry when it
// reaches zero so exhausted orders read as non-existent.
func (s *Store) AvailabilitySet(hash [32]byte, amount *big.Int) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() == 0 {
		s.kv.Delete(hashKey(prefixAvailability, hash))
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeSet
	}
	s.kv.Put(hashKey(prefixAvailability, hash), amount.Bytes())
	return nil
}

// SwapActive reports whether the swap hash is currently active.
func (s *Store) SwapActive(hash [32]byte) (bool, error) {
	if s == nil || s.kv == nil {
		return false, errNilStore
	}
	_, ok := s.kv.Get(hashKey(prefixSwapActive, hash))
	return ok, nil
}

// SwapSetActive flips the active flag for the swap hash.
func (s *Store) SwapSetActive(hash [32]byte, active bool) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	if active {
		s.kv.Put(hashKey(prefixSwapActive, hash), []byte{1})
		return nil
	}
	s.kv.Delete(hashKey(prefixSwapActive, hash))
	return nil
}

func announcementKey(prefix string, hash [32]byte) []byte {
	return hashKey(prefix, hash)
}

// CancelAnnouncementGet returns the time an offer cancellation was announced.
func (s *Store) CancelAnnouncementGet(hash [32]byte) (int64, bool, error) {
	return s.announcementGet(prefixCancelAnn, hash)
}

// CancelAnnouncementSet records the announcement time for an offer hash.
func (s *Store) CancelAnnouncementSet(hash [32]byte, at int64) error {
	return s.announcementSet(prefixCancelAnn, hash, at)
}

// CancelAnnouncementClear removes the announcement for an offer hash.
func (s *Store) CancelAnnouncementClear(hash [32]byte) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	s.kv.Delete(announcementKey(prefixCancelAnn, hash))
	return nil
}

// SwapAnnouncementGet returns the time a swap cancellation was announced.
func (s *Store) SwapAnnouncementGet(hash [32]byte) (int64, bool, error) {
	return s.announcementGet(prefixSwapAnn, hash)
}

// SwapAnnouncementSet records the announcement time for a swap hash.
func (s *Store) SwapAnnouncementSet(hash [32]byte, at int64) error {
	return s.announcementSet(prefixSwapAnn, hash, at)
}

// SwapAnnouncementClear removes the announcement for a swap hash.
func (s *Store) SwapAnnouncementClear(hash [32]byte) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	s.kv.Delete(announcementKey(prefixSwapAnn, hash))
	return nil
}

func (s *Store) announcementGet(prefix string, hash [32]byte) (int64, bool, error) {
	if s == nil || s.kv == nil {
		return 0, false, errNilStore
	}
	raw, ok := s.kv.Get(announcementKey(prefix, hash))
	if !ok || len(raw) != 8 {
		return 0, false, nil
	}
	return int64(binary.BigEndian.Uint64(raw)), true, nil
}

func (s *Store) announcementSet(prefix string, hash [32]byte, at int64) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(at))
	s.kv.Put(announcementKey(prefix, hash), buf)
	return nil
}

func spenderKey(owner, spender [20]byte) []byte {
	key := make([]byte, 0, len(prefixSpender)+40)
	key = append(key, prefixSpender...)
	key = append(key, owner[:]...)
	key = append(key, spender[:]...)
	return key
}

// SpenderAuthorized reports whether spender may move owner's funds.
func (s *Store) SpenderAuthorized(owner, spender [20]byte) (bool, error) {
	if s == nil || s.kv == nil {
		return false, errNilStore
	}
	_, ok := s.kv.Get(spenderKey(owner, spender))
	return ok, nil
}

// SpenderSetAuthorized grants or revokes the spender capability.
func (s *Store) SpenderSetAuthorized(owner, spender [20]byte, authorized bool) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	if authorized {
		s.kv.Put(spenderKey(owner, spender), []byte{1})
		return nil
	}
	s.kv.Delete(spenderKey(owner, spender))
	return nil
}

// TradingFrozen reports the emergency freeze flag.
func (s *Store) TradingFrozen() (bool, error) {
	if s == nil || s.kv == nil {
		return false, errNilStore
	}
	_, ok := s.kv.Get([]byte(keyTradingFrozen))
	return ok, nil
}

// SetTradingFrozen flips the emergency freeze flag.
func (s *Store) SetTradingFrozen(frozen bool) error {
	if s == nil || s.kv == nil {
		return errNilStore
	}
	if frozen {
		s.kv.Put([]byte(keyTradingFrozen), []byte{1})
		return nil
	}
	s.kv.Delete([]byte(keyTradingFrozen))
	return nil
}

package audit

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"settlenet/native/ledger"
	"settlenet/state"
)

func newRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func newLedger(t *testing.T, rec *Recorder) *ledger.Ledger {
	t.Helper()
	store := state.NewStore()
	l := ledger.New()
	l.SetState(store)
	l.SetEmitter(rec)
	return l
}

func TestReconstructMatchesLiveBalances(t *testing.T) {
	rec := newRecorder(t)
	l := newLedger(t, rec)

	alice := [20]byte{0x01}
	bob := [20]byte{0x02}
	require.NoError(t, l.Increase(alice, "AAA", big.NewInt(100), ledger.ReasonDeposit, 0))
	require.NoError(t, l.Increase(bob, "AAA", big.NewInt(40), ledger.ReasonDeposit, 0))
	require.NoError(t, l.Transfer(alice, bob, "AAA", big.NewInt(25), ledger.ReasonTradeGive, ledger.ReasonTradeReceive, 1))
	require.NoError(t, l.Decrease(bob, "AAA", big.NewInt(65), ledger.ReasonWithdraw, 2))
	require.NoError(t, l.Increase(alice, "BBB", big.NewInt(7), ledger.ReasonDeposit, 0))

	balances, err := rec.Reconstruct("AAA")
	require.NoError(t, err)
	require.Len(t, balances, 1, "bob's zeroed account must be dropped")
	require.Equal(t, "75", balances[hex.EncodeToString(alice[:])].String())

	other, err := rec.Reconstruct("BBB")
	require.NoError(t, err)
	require.Equal(t, "7", other[hex.EncodeToString(alice[:])].String())
}

func TestRecorderPersistsNonBalanceEvents(t *testing.T) {
	rec := newRecorder(t)
	l := newLedger(t, rec)

	acct := [20]byte{0x03}
	require.NoError(t, l.Deposit(acct, "AAA", big.NewInt(10), big.NewInt(10)))

	var count int64
	require.NoError(t, rec.db.Model(&EventRecord{}).Where("type = ?", ledger.EventTypeDeposit).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var balanceCount int64
	require.NoError(t, rec.db.Model(&BalanceRecord{}).Count(&balanceCount).Error)
	require.EqualValues(t, 1, balanceCount)
}

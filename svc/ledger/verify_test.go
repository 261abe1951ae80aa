package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coachkit/creditledger/svc/ledger"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	valid := func() *ledger.Account {
		return &ledger.Account{
			ID:           "acc_1",
			Balance:      150,
			TrimmedDelta: 100,
			Transactions: []ledger.Transaction{
				{Seq: 3, Kind: ledger.KindAddition, Delta: 100, BalanceBefore: 100, BalanceAfter: 200},
				{Seq: 4, Kind: ledger.KindDeduction, Delta: -50, BalanceBefore: 200, BalanceAfter: 150},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(a *ledger.Account)
		wantErr bool
	}{
		{name: "valid", mutate: func(*ledger.Account) {}},
		{name: "no history", mutate: func(a *ledger.Account) {
			a.Transactions = nil
			a.TrimmedDelta = 150
		}},
		{name: "entry arithmetic", mutate: func(a *ledger.Account) { a.Transactions[1].BalanceAfter = 149 }, wantErr: true},
		{name: "broken chain", mutate: func(a *ledger.Account) {
			a.Transactions[1].BalanceBefore = 210
			a.Transactions[1].BalanceAfter = 160
		}, wantErr: true},
		{name: "sequence gap", mutate: func(a *ledger.Account) { a.Transactions[1].Seq = 6 }, wantErr: true},
		{name: "balance drift", mutate: func(a *ledger.Account) { a.TrimmedDelta = 90 }, wantErr: true},
		{name: "negative balance", mutate: func(a *ledger.Account) { a.Balance = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := valid()
			tt.mutate(a)
			err := ledger.Verify(a)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrInvariantViolated)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.ErrorIs(t, ledger.Verify(nil), ledger.ErrNotFound)
}

func TestAccount_FindByReference(t *testing.T) {
	t.Parallel()

	a := &ledger.Account{Transactions: []ledger.Transaction{
		{Seq: 1, Kind: ledger.KindRenewal, Metadata: ledger.Metadata{Reference: "in_1"}},
		{Seq: 2, Kind: ledger.KindAddition, Metadata: ledger.Metadata{Reference: "in_2"}},
	}}

	got := a.FindByReference(ledger.KindRenewal, "in_1")
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(1), got.Seq)
	}
	assert.Nil(t, a.FindByReference(ledger.KindRenewal, "in_2"))
	assert.Nil(t, a.FindByReference(ledger.KindRenewal, ""))
	assert.Nil(t, (*ledger.Account)(nil).FindByReference(ledger.KindRenewal, "in_1"))
}

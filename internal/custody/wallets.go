package custody

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Wallets is an in-memory native balance ledger used to settle pool creation fees.
type Wallets struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

func NewWallets() *Wallets {
	return &Wallets{balances: make(map[common.Address]*big.Int)}
}

// Fund credits amount to account.
func (w *Wallets) Fund(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid amount")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.credit(account, amount)
	return nil
}

// BalanceOf returns a copy of the account balance.
func (w *Wallets) BalanceOf(account common.Address) *big.Int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if bal, ok := w.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (w *Wallets) TransferValue(_ context.Context, from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return ErrInvalidRecipient
	}
	if amount == nil {
		amount = new(big.Int)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	bal := w.balances[from]
	if amount.Sign() > 0 && (bal == nil || bal.Cmp(amount) < 0) {
		return fmt.Errorf("%s has %v, needs %s: %w", from.Hex(), bal, amount, ErrInsufficientBalance)
	}
	if amount.Sign() == 0 {
		return nil
	}
	bal.Sub(bal, amount)
	w.credit(to, amount)
	return nil
}

func (w *Wallets) credit(account common.Address, amount *big.Int) {
	bal, ok := w.balances[account]
	if !ok {
		bal = new(big.Int)
		w.balances[account] = bal
	}
	bal.Add(bal, amount)
}

// Balance is one account balance, used for snapshots.
type Balance struct {
	Account common.Address `json:"account"`
	Amount  string         `json:"amount"`
}

// Balances returns non-zero balances sorted by account.
func (w *Wallets) Balances() []Balance {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Balance, 0, len(w.balances))
	for account, bal := range w.balances {
		if bal.Sign() == 0 {
			continue
		}
		out = append(out, Balance{Account: account, Amount: bal.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Cmp(out[j].Account) < 0 })
	return out
}

// RestoreWallets rebuilds wallets from snapshot balances.
func RestoreWallets(balances []Balance) (*Wallets, error) {
	w := NewWallets()
	for _, b := range balances {
		amount, ok := new(big.Int).SetString(b.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance for %s: %s", b.Account.Hex(), b.Amount)
		}
		if err := w.Fund(b.Account, amount); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Package wallet holds the coins an instance has earned but not yet spent.
package wallet

import (
	"sync"

	"github.com/mesh-intelligence/goldrush/pkg/types"
)

// Batch sizes tried when funding a license, largest first.
var batchSizes = []int{21, 11, 6, 1}

// BatchSize returns how many coins to spend on the next license given the
// current balance: the largest batch the balance covers, or 0 for a free
// license.
func BatchSize(balance int) int {
	for _, n := range batchSizes {
		if balance >= n {
			return n
		}
	}
	return 0
}

// Totals are the lifetime coin counts of a wallet.
type Totals struct {
	Credited int
	Spent    int
}

// Wallet is safe for concurrent use.
type Wallet struct {
	mu     sync.Mutex
	coins  []types.Coin
	totals Totals
}

// New returns an empty wallet.
func New() *Wallet {
	return &Wallet{}
}

// Credit adds coins, oldest first.
func (w *Wallet) Credit(coins []types.Coin) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.coins = append(w.coins, coins...)
	w.totals.Credited += len(coins)
}

// Take removes up to n of the oldest coins and counts them as spent.
func (w *Wallet) Take(n int) []types.Coin {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.takeLocked(n)
}

// TakeBatch removes a BatchSize-sized batch for the current balance.
func (w *Wallet) TakeBatch() []types.Coin {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.takeLocked(BatchSize(len(w.coins)))
}

// Refund puts back coins a license request was refused for, ahead of the
// rest, and no longer counts them as spent.
func (w *Wallet) Refund(coins []types.Coin) {
	if len(coins) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.coins = append(append(make([]types.Coin, 0, len(coins)+len(w.coins)), coins...), w.coins...)
	w.totals.Spent -= len(coins)
}

func (w *Wallet) takeLocked(n int) []types.Coin {
	if n > len(w.coins) {
		n = len(w.coins)
	}
	if n <= 0 {
		return nil
	}
	out := make([]types.Coin, n)
	copy(out, w.coins)
	w.coins = w.coins[n:]
	w.totals.Spent += n
	return out
}

// Balance returns the number of unspent coins.
func (w *Wallet) Balance() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.coins)
}

// Totals returns lifetime credited and spent counts.
func (w *Wallet) Totals() Totals {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totals
}

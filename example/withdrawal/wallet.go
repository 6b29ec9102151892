package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

// Wallet stands in for the payments backend.
type Wallet struct {
	mu      sync.Mutex
	balance float64
	minimum float64
	seq     int
}

func (w *Wallet) Fetch(ctx context.Context) (types.Values, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return types.Values{"balance": w.balance}, nil
}

func (w *Wallet) Withdraw(ctx context.Context, values types.Values) (types.Values, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	amount, _ := schema.Number(values["amount"])
	if amount < w.minimum {
		return nil, &submit.RemoteError{Message: "transactionMinimalValue", Payload: map[string]any{"value": w.minimum}}
	}
	if amount > w.balance {
		return nil, &submit.RemoteError{Message: "transactionMaximalValue", Payload: map[string]any{"value": w.balance}}
	}
	w.balance -= amount
	w.seq++
	slog.Info("Withdrawal accepted", "account", values["account"], "amount", amount, "balance", w.balance)
	return types.Values{"id": fmt.Sprintf("w-%d", w.seq)}, nil
}

package testcases

import (
	"context"
	"fmt"
	"sync"

	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/forms"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

// Backend is an in-memory stand-in for the operator panel API.
type Backend struct {
	mu          sync.Mutex
	Balance     float64
	Minimum     float64
	Email       string
	Code        string
	Withdrawals []types.Values
	CodeSentTo  []string
	Confirmed   []string
	Calls       map[string]int
}

func NewBackend() *Backend {
	return &Backend{
		Balance: 100,
		Minimum: 10,
		Email:   "old@example.com",
		Code:    "123456",
		Calls:   map[string]int{},
	}
}

func (b *Backend) count(name string) {
	b.Calls[name]++
}

func (b *Backend) CallCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Calls[name]
}

func (b *Backend) FetchWallet(ctx context.Context) (types.Values, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("wallet")
	return types.Values{"balance": b.Balance}, nil
}

func (b *Backend) FetchProfile(ctx context.Context) (types.Values, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("profile")
	return types.Values{"email": b.Email}, nil
}

func (b *Backend) Withdraw(ctx context.Context, values types.Values) (types.Values, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("withdraw")
	amount, _ := schema.Number(values["amount"])
	switch {
	case amount < b.Minimum:
		return nil, &submit.RemoteError{Status: 400, Message: "transactionMinimalValue", Payload: map[string]any{"value": b.Minimum}}
	case amount > b.Balance:
		return nil, &submit.RemoteError{Status: 400, Message: "transactionMaximalValue", Payload: map[string]any{"value": b.Balance}}
	}
	b.Balance -= amount
	b.Withdrawals = append(b.Withdrawals, values)
	return types.Values{"id": fmt.Sprintf("w-%d", len(b.Withdrawals)), "balance": b.Balance}, nil
}

func (b *Backend) RequestCode(ctx context.Context, values types.Values) (types.Values, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("request_code")
	email, _ := values["email"].(string)
	if email == b.Email {
		return nil, &submit.RemoteError{Status: 422, FieldErrors: map[string][]string{"body.email": {"email is unchanged"}}}
	}
	b.CodeSentTo = append(b.CodeSentTo, email)
	return nil, nil
}

func (b *Backend) ConfirmCode(ctx context.Context, values types.Values) (types.Values, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count("confirm_code")
	if values["code"] != b.Code {
		return nil, &submit.RemoteError{Status: 400, Message: "invalidCode"}
	}
	email, _ := values["email"].(string)
	b.Email = email
	b.Confirmed = append(b.Confirmed, email)
	return types.Values{"email": email}, nil
}

func (b *Backend) WithdrawalForm() stepform.Definition {
	return forms.Withdrawal(
		dialog.FetchFunc(b.FetchWallet),
		submit.NewFunc(b.Withdraw, forms.WithdrawalCodes, "account", "amount", "comment"),
	)
}

func (b *Backend) ChangeEmailForm() stepform.Definition {
	return forms.ChangeEmail(
		dialog.FetchFunc(b.FetchProfile),
		submit.NewFunc(b.RequestCode, forms.ChangeEmailCodes, "email"),
		submit.NewFunc(b.ConfirmCode, forms.ChangeEmailCodes, "email", "code"),
	)
}

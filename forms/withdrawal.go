// Package forms holds the concrete workflows of the operator panel. Each
// supplies data only: fields, steps and error codes.
package forms

import (
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/i18n"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
)

const WithdrawalName = "withdrawal"

var WithdrawalCodes = submit.Codes{
	"transactionMinimalValue": {Key: i18n.KeyTransactionMinimalValue, Args: []string{"value"}, Recovery: submit.RecoveryAdjust},
	"transactionMaximalValue": {Key: i18n.KeyTransactionMaximalValue, Args: []string{"value"}, Recovery: submit.RecoveryAdjust},
	"limitExceeded":           {Key: i18n.KeyLimitExceeded, Recovery: submit.RecoveryRestart},
}

func WithdrawalFields() []schema.FieldSpec {
	return []schema.FieldSpec{
		{
			Name:        "account",
			DisplayName: "Account",
			Description: "Account the money is withdrawn to",
			Type:        schema.TypeString,
			Step:        1,
		},
		{
			Name:        "balance",
			DisplayName: "Balance",
			Description: "Available balance, loaded with the form",
			Type:        schema.TypeNumber,
			Optional:    true,
			ReadOnly:    true,
		},
		{
			Name:        "amount",
			DisplayName: "Amount",
			Description: "Amount to withdraw, greater than zero and at most the balance",
			Type:        schema.TypeNumber,
			Step:        2,
			Rules: []schema.Rule{
				schema.Positive(),
				schema.AtMostField("balance", schema.ErrBalanceUnavailable),
			},
		},
		{
			Name:        "comment",
			DisplayName: "Comment",
			Type:        schema.TypeString,
			Step:        2,
			Optional:    true,
			Rules:       []schema.Rule{schema.MaxLength(140)},
		},
	}
}

// Withdrawal selects an account, then submits the amount.
func Withdrawal(fetch dialog.Fetcher, adapter submit.Adapter) stepform.Definition {
	return stepform.Definition{
		Name:        WithdrawalName,
		Title:       "Withdrawal",
		Description: "Withdraw money from the player balance",
		Fields:      WithdrawalFields(),
		Steps: []step.Step{
			{Name: "account"},
			{Name: "amount", Submit: adapter, Terminal: true},
		},
		Fetch: fetch,
		Codes: WithdrawalCodes,
	}
}

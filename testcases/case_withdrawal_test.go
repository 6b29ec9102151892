package testcases

import (
	"strings"
	"testing"

	"github.com/tbxark/stepform/command"
	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/types"
)

func TestWithdrawalHappyPath(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	resp := h.Say("account: acc-1")
	if resp.View.Values["balance"] != 100.0 {
		t.Fatalf("balance not hydrated: %+v", resp.View.Values)
	}
	h.Say("next")
	resp = h.Say("amount: 40, comment: rent")
	if len(resp.View.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", resp.View.Errors)
	}
	resp = h.Say("next")
	if resp.View.Kind != types.KindSucceeded {
		t.Fatalf("kind = %s, message %q", resp.View.Kind, resp.Message)
	}
	if resp.View.Payload["id"] != "w-1" {
		t.Errorf("payload = %+v", resp.View.Payload)
	}
	if h.Backend.CallCount("withdraw") != 1 || h.Backend.Balance != 60 {
		t.Errorf("withdraw calls %d, balance %v", h.Backend.CallCount("withdraw"), h.Backend.Balance)
	}
	toasts := h.Toasts.Toasts()
	if len(toasts) != 1 || toasts[0].Kind != notify.KindSuccess {
		t.Errorf("toasts = %+v", toasts)
	}
}

func TestWithdrawalAmountOverBalance(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	h.Say("account: acc-1")
	h.Say("next")
	resp := h.Say("amount: 500")
	if resp.Message != "Amount: balance unavailable" {
		t.Fatalf("reply = %q", resp.Message)
	}
	resp = h.Say("next")
	if resp.View.Step != 2 || resp.View.Kind != types.KindStep {
		t.Fatalf("advanced with invalid amount: %+v", resp.View)
	}
	if h.Backend.CallCount("withdraw") != 0 {
		t.Fatalf("invalid amount was submitted")
	}
}

func TestWithdrawalDomainFailure(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	h.Say("account: acc-1")
	h.Say("next")
	h.Say("amount: 5")
	resp := h.Say("next")
	if resp.View.Kind != types.KindFailed || resp.View.Failure == nil {
		t.Fatalf("kind = %s", resp.View.Kind)
	}
	if !strings.HasPrefix(resp.Message, "minimum value: 10") {
		t.Fatalf("reply = %q", resp.Message)
	}
	toasts := h.Toasts.Toasts()
	if len(toasts) != 1 || toasts[0].Message != "minimum value: 10" {
		t.Fatalf("toasts = %+v", toasts)
	}

	resp = h.Say("retry")
	if resp.Command != command.Retry || resp.View.Kind != types.KindStep || resp.View.Step != 2 {
		t.Fatalf("adjust recovery: %+v", resp.View)
	}
	if resp.View.Values["amount"] != 5.0 {
		t.Fatalf("amount lost after adjust: %v", resp.View.Values["amount"])
	}
	h.Say("amount: 15")
	resp = h.Say("next")
	if resp.View.Kind != types.KindSucceeded {
		t.Fatalf("second submit: %s %q", resp.View.Kind, resp.Message)
	}
	if h.Backend.CallCount("withdraw") != 2 {
		t.Fatalf("withdraw calls = %d", h.Backend.CallCount("withdraw"))
	}
}

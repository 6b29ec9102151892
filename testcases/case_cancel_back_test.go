package testcases

import (
	"testing"

	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/types"
)

func TestBackFromFirstStepClosesCleanForm(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	resp := h.Say("back")
	if resp.View.Kind != types.KindClosed || resp.Metadata["closed"] != "true" {
		t.Fatalf("back on a clean form: %+v", resp.View)
	}
	if resp.Message != "The form is closed." {
		t.Fatalf("reply = %q", resp.Message)
	}
}

func TestBackKeepsValues(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	h.Say("account: acc-1")
	h.Say("next")
	h.Say("amount: 20")
	resp := h.Say("back")
	if resp.View.Step != 1 || resp.View.Values["amount"] != 20.0 {
		t.Fatalf("back: %+v", resp.View)
	}
	if len(resp.View.Errors) != 0 {
		t.Fatalf("step 2 errors surfaced on step 1: %+v", resp.View.Errors)
	}
}

func TestCloseDirtyThenSave(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	h.Say("account: acc-1")
	h.Say("next")
	h.Say("amount: 30")
	resp := h.Say("cancel")
	if resp.View.Prompt == nil {
		t.Fatalf("no unsaved-changes prompt: %+v", resp.View)
	}
	resp = h.Say("save")
	if resp.View.Kind != types.KindClosed {
		t.Fatalf("save and close: %s %q", resp.View.Kind, resp.Message)
	}
	if h.Backend.CallCount("withdraw") != 1 || h.Backend.Balance != 70 {
		t.Fatalf("withdraw calls %d, balance %v", h.Backend.CallCount("withdraw"), h.Backend.Balance)
	}
	var kinds []notify.Kind
	for _, toast := range h.Toasts.Toasts() {
		kinds = append(kinds, toast.Kind)
	}
	if len(kinds) != 2 || kinds[0] != notify.KindWarning || kinds[1] != notify.KindSuccess {
		t.Fatalf("toasts = %v", kinds)
	}
}

func TestCloseDirtySaveFailureKeepsPrompt(t *testing.T) {
	t.Parallel()
	h := NewLocalHarness(t, (*Backend).WithdrawalForm)

	h.Say("account: acc-1")
	h.Say("next")
	h.Say("amount: 3")
	h.Say("close")
	resp := h.Say("save")
	if resp.View.Kind == types.KindClosed {
		t.Fatalf("closed although save failed")
	}
	if resp.View.Prompt == nil {
		t.Fatalf("prompt dropped after failed save")
	}
	resp = h.Say("discard")
	if resp.View.Kind != types.KindClosed {
		t.Fatalf("discard: %+v", resp.View)
	}
	if h.Backend.Balance != 100 {
		t.Fatalf("balance changed to %v", h.Backend.Balance)
	}
}

package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestMessage(t *testing.T) {
	t.Parallel()
	tr := New()
	tests := []struct {
		name string
		tag  language.Tag
		key  string
		args []any
		want string
	}{
		{"english", language.English, KeyMustBePositive, nil, "value must be greater than zero"},
		{"params", language.English, KeyTransactionMinimalValue, []any{10}, "minimum value: 10"},
		{"russian", language.Russian, KeyBalanceUnavailable, nil, "недостаточно средств"},
		{"regional variant", language.MustParse("ru-RU"), KeyLimitExceeded, nil, "превышен лимит"},
		{"unknown key", language.English, "somethingNobodyKnows", nil, "something went wrong, please try again"},
		{"unknown language", language.Japanese, KeyRequired, nil, "this field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Message(tt.tag, tt.key, tt.args...); got != tt.want {
				t.Errorf("Message(%s, %q) = %q, want %q", tt.tag, tt.key, got, tt.want)
			}
		})
	}
}

func TestSetOverrides(t *testing.T) {
	t.Parallel()
	tr := New()
	if err := tr.Set(language.English, "clubArchived", "club %s is archived"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !tr.Has("clubArchived") {
		t.Fatal("expected key to be registered")
	}
	if got := tr.Message(language.English, "clubArchived", "Ace"); got != "club Ace is archived" {
		t.Errorf("got %q", got)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	if got := Parse("not a tag!"); got != language.English {
		t.Errorf("Parse fallback = %s", got)
	}
	if got := Parse("ru"); got != language.Russian {
		t.Errorf("Parse(ru) = %s", got)
	}
}

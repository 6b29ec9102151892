// Package i18n maps message keys to translated, user-facing strings.
package i18n

import (
	"fmt"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys shared by the validation schema, the submission adapter and the dialogs.
const (
	KeyRequired           = "required"
	KeyInvalidEmail       = "invalidEmail"
	KeyInvalidFormat      = "invalidFormat"
	KeyMustBePositive     = "mustBePositive"
	KeyBalanceUnavailable = "balanceUnavailable"
	KeyTooLong            = "tooLong"
	KeyTooShort           = "tooShort"
	KeyNotAllowed         = "notAllowed"
	KeyDateOrder          = "dateOrder"
	KeyAtLeastOne         = "atLeastOne"
	KeyRequiredWith       = "requiredWith"

	KeyTransactionMinimalValue = "transactionMinimalValue"
	KeyTransactionMaximalValue = "transactionMaximalValue"
	KeyLimitExceeded           = "limitExceeded"
	KeyInvalidCode             = "invalidCode"
	KeyGenericFailure          = "genericFailure"

	KeySaved          = "saved"
	KeyDiscarded      = "discarded"
	KeyUnsavedChanges = "unsavedChanges"
)

var defaults = map[language.Tag]map[string]string{
	language.English: {
		KeyRequired:                "this field is required",
		KeyInvalidEmail:            "invalid email format",
		KeyInvalidFormat:           "invalid format",
		KeyMustBePositive:          "value must be greater than zero",
		KeyBalanceUnavailable:      "balance unavailable",
		KeyTooLong:                 "must be at most %d characters",
		KeyTooShort:                "must be at least %d characters",
		KeyNotAllowed:              "value is not allowed",
		KeyDateOrder:               "end date must not be before start date",
		KeyAtLeastOne:              "fill at least one of: %s",
		KeyRequiredWith:            "required when %s is set",
		KeyTransactionMinimalValue: "minimum value: %v",
		KeyTransactionMaximalValue: "maximum value: %v",
		KeyLimitExceeded:           "limit exceeded",
		KeyInvalidCode:             "the confirmation code is invalid",
		KeyGenericFailure:          "something went wrong, please try again",
		KeySaved:                   "changes saved",
		KeyDiscarded:               "changes discarded",
		KeyUnsavedChanges:          "you have unsaved changes: save or discard them?",
	},
	language.Russian: {
		KeyRequired:                "обязательное поле",
		KeyInvalidEmail:            "неверный формат email",
		KeyInvalidFormat:           "неверный формат",
		KeyMustBePositive:          "значение должно быть больше нуля",
		KeyBalanceUnavailable:      "недостаточно средств",
		KeyTooLong:                 "не более %d символов",
		KeyTooShort:                "не менее %d символов",
		KeyNotAllowed:              "недопустимое значение",
		KeyDateOrder:               "дата окончания не может быть раньше даты начала",
		KeyAtLeastOne:              "заполните хотя бы одно из полей: %s",
		KeyRequiredWith:            "обязательно, если заполнено %s",
		KeyTransactionMinimalValue: "минимальное значение: %v",
		KeyTransactionMaximalValue: "максимальное значение: %v",
		KeyLimitExceeded:           "превышен лимит",
		KeyInvalidCode:             "неверный код подтверждения",
		KeyGenericFailure:          "что-то пошло не так, попробуйте ещё раз",
		KeySaved:                   "изменения сохранены",
		KeyDiscarded:               "изменения отменены",
		KeyUnsavedChanges:          "есть несохранённые изменения: сохранить или отменить?",
	},
}

// Translator renders message keys for a language. Unknown keys fall back to
// KeyGenericFailure; unknown languages fall back to English.
type Translator struct {
	mu      sync.RWMutex
	builder *catalog.Builder
	keys    map[string]struct{}
	tags    []language.Tag
	matcher language.Matcher
}

func New() *Translator {
	t := &Translator{
		builder: catalog.NewBuilder(catalog.Fallback(language.English)),
		keys:    make(map[string]struct{}),
	}
	for _, tag := range []language.Tag{language.English, language.Russian} {
		for key, msg := range defaults[tag] {
			_ = t.Set(tag, key, msg)
		}
	}
	return t
}

// Set registers or replaces the translation of key for tag.
func (t *Translator) Set(tag language.Tag, key, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.builder.SetString(tag, key, msg); err != nil {
		return fmt.Errorf("set message %q for %s: %w", key, tag, err)
	}
	t.keys[key] = struct{}{}
	known := false
	for _, existing := range t.tags {
		if existing == tag {
			known = true
			break
		}
	}
	if !known {
		t.tags = append(t.tags, tag)
		t.matcher = language.NewMatcher(t.tags)
	}
	return nil
}

// Has reports whether a translation is registered for key in any language.
func (t *Translator) Has(key string) bool {
	t.mu.RLock()
	_, ok := t.keys[key]
	t.mu.RUnlock()
	return ok
}

// Message renders key with args for tag.
func (t *Translator) Message(tag language.Tag, key string, args ...any) string {
	if !t.Has(key) {
		key, args = KeyGenericFailure, nil
	}
	t.mu.RLock()
	p := message.NewPrinter(t.match(tag), message.Catalog(t.builder))
	t.mu.RUnlock()
	return p.Sprintf(key, args...)
}

func (t *Translator) match(tag language.Tag) language.Tag {
	if t.matcher == nil {
		return language.English
	}
	_, idx, conf := t.matcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return t.tags[idx]
}

// Parse parses a BCP 47 tag such as "en" or "ru-RU", defaulting to English.
func Parse(s string) language.Tag {
	tag, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	return tag
}

var (
	defaultOnce       sync.Once
	defaultTranslator *Translator
)

// Default returns a process-wide translator with the built-in catalogs.
func Default() *Translator {
	defaultOnce.Do(func() {
		defaultTranslator = New()
	})
	return defaultTranslator
}

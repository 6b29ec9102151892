package submit

import (
	"slices"
	"strings"
)

var wrapperSegments = map[string]struct{}{
	"body":       {},
	"request":    {},
	"payload":    {},
	"data":       {},
	"values":     {},
	"attributes": {},
}

// MapFieldErrors attributes backend error paths such as "/amount",
// "body.amount" or "data[amount]" to form fields. Unmatched paths and the
// form-level keys "" "_form" "form" become form errors.
func MapFieldErrors(fields []string, payload map[string][]string) (map[string][]string, []string) {
	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[f] = struct{}{}
	}
	mapped := make(map[string][]string)
	var form []string

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, raw := range keys {
		messages := normalizeMessages(payload[raw])
		if len(messages) == 0 {
			continue
		}
		field, ok := mapErrorPath(raw, known)
		if !ok {
			form = append(form, messages...)
			continue
		}
		mapped[field] = appendMessages(mapped[field], messages)
	}
	if len(mapped) == 0 {
		mapped = nil
	}
	return mapped, normalizeMessages(form)
}

func mapErrorPath(raw string, known map[string]struct{}) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "", "_form", "form", "_error", "$":
		return "", false
	}
	segments := pathSegments(trimmed)
	for len(segments) > 0 {
		if _, ok := wrapperSegments[strings.ToLower(segments[0])]; !ok {
			break
		}
		segments = segments[1:]
	}
	if len(segments) == 0 {
		return "", false
	}
	if _, ok := known[segments[0]]; ok {
		return segments[0], true
	}
	if len(known) == 0 {
		return segments[0], true
	}
	return "", false
}

func pathSegments(path string) []string {
	clean := strings.TrimLeft(path, "#$/.")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)
	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		out = append(out, part)
	}
	return out
}

func normalizeMessages(messages []string) []string {
	return appendMessages(nil, messages)
}

func appendMessages(dst, messages []string) []string {
	for _, m := range messages {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(dst, m) {
			continue
		}
		dst = append(dst, m)
	}
	return dst
}

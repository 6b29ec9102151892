package patch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tbxark/stepform/types"
)

// Apply applies RFC6902 operations to the values document. Only keys whose
// JSON encoding changed are taken from the patched document, so untouched
// values keep their Go types (time.Time, FileRef, ...).
func Apply(current types.Values, ops []Operation, allowed map[string]bool) (types.Values, error) {
	if len(ops) == 0 {
		return current.Clone(), nil
	}
	if err := ValidateOperations(ops, allowed); err != nil {
		return nil, err
	}
	if current == nil {
		current = types.Values{}
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current values: %w", err)
	}

	ops = FixOperation(currentJSON, ops)

	patchJSON, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch operations: %w", err)
	}

	p, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}

	modifiedJSON, err := p.Apply(currentJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	var before, after map[string]json.RawMessage
	if err := json.Unmarshal(currentJSON, &before); err != nil {
		return nil, fmt.Errorf("failed to decode current values: %w", err)
	}
	if err := json.Unmarshal(modifiedJSON, &after); err != nil {
		return nil, fmt.Errorf("patch must keep the values document an object: %w", err)
	}

	result := current.Clone()
	for key := range before {
		if _, ok := after[key]; !ok {
			delete(result, key)
		}
	}
	for key, raw := range after {
		if old, ok := before[key]; ok && bytes.Equal(old, raw) {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode value of %s: %w", key, err)
		}
		result[key] = v
	}
	return result, nil
}

func FixOperation(currentJSON []byte, ops []Operation) []Operation {
	var doc any
	if err := json.Unmarshal(currentJSON, &doc); err != nil {
		return ops
	}

	fixed := make([]Operation, 0, len(ops))
	for _, op := range ops {
		switch op.Op {
		case OperationReplace:
			if !pathExists(doc, op.Path) {
				op.Op = OperationAdd
			}
			fixed = append(fixed, op)
		case OperationRemove:
			if pathExists(doc, op.Path) {
				fixed = append(fixed, op)
			}
		default:
			fixed = append(fixed, op)
		}
	}

	return fixed
}

func pathExists(doc any, path string) bool {
	if path == "" {
		return true
	}
	if !strings.HasPrefix(path, "/") {
		return false
	}

	cur := doc
	for _, token := range strings.Split(path[1:], "/") {
		token = unescapeJSONPointer(token)
		switch node := cur.(type) {
		case map[string]any:
			value, ok := node[token]
			if !ok {
				return false
			}
			cur = value
		case []any:
			index, err := strconv.Atoi(token)
			if err != nil || index < 0 || index >= len(node) {
				return false
			}
			cur = node[index]
		default:
			return false
		}
	}

	return true
}

// Field returns the top-level field a JSON pointer addresses.
func Field(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return unescapeJSONPointer(path)
}

// Pointer returns the JSON pointer of a top-level field.
func Pointer(field string) string {
	return "/" + escapeJSONPointer(field)
}

func unescapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

func escapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

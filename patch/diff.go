package patch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/tbxark/stepform/types"
)

// Diff returns the operations turning from into to, one per changed field,
// in field name order.
func Diff(from, to types.Values) ([]Operation, error) {
	fromMap, err := normalize(from)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize source values: %w", err)
	}
	toMap, err := normalize(to)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize target values: %w", err)
	}

	keys := make([]string, 0, len(fromMap)+len(toMap))
	seen := make(map[string]struct{}, len(fromMap)+len(toMap))
	for _, m := range []map[string]any{fromMap, toMap} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	ops := make([]Operation, 0)
	for _, key := range keys {
		before, inFrom := fromMap[key]
		after, inTo := toMap[key]
		path := Pointer(key)
		switch {
		case inFrom && !inTo:
			ops = append(ops, Operation{Op: OperationRemove, Path: path})
		case !inFrom && inTo:
			ops = append(ops, Operation{Op: OperationAdd, Path: path, Value: to[key]})
		case !reflect.DeepEqual(before, after):
			ops = append(ops, Operation{Op: OperationReplace, Path: path, Value: to[key]})
		}
	}
	return ops, nil
}

func normalize(values types.Values) (map[string]any, error) {
	if values == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

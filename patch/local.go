package patch

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/tbxark/stepform/types"
)

// LocalPatchGenerator extracts "field: value" or "field=value" pairs from the
// user answer. Only fields of the request are recognised; a display name
// matches as well as the field name.
type LocalPatchGenerator struct{}

func NewLocalPatchGenerator() *LocalPatchGenerator {
	return &LocalPatchGenerator{}
}

func (g *LocalPatchGenerator) GeneratePatch(ctx context.Context, req *types.ToolRequest) (*UpdateFormArgs, error) {
	lookup := make(map[string]types.FieldInfo, len(req.Fields)*2)
	for _, f := range req.Fields {
		lookup[strings.ToLower(f.Name)] = f
		if f.DisplayName != "" {
			lookup[strings.ToLower(f.DisplayName)] = f
		}
	}
	args := &UpdateFormArgs{}
	for _, part := range splitAssignments(req.MessagePair.Answer) {
		key, raw, ok := cutAssignment(part)
		if !ok {
			continue
		}
		field, ok := lookup[strings.ToLower(key)]
		if !ok {
			continue
		}
		if raw == "" {
			args.Ops = append(args.Ops, Operation{Op: OperationRemove, Path: Pointer(field.Name)})
			continue
		}
		args.Ops = append(args.Ops, Operation{Op: OperationReplace, Path: Pointer(field.Name), Value: parseValue(raw, field.Type)})
	}
	return args, nil
}

func splitAssignments(input string) []string {
	return strings.FieldsFunc(input, func(r rune) bool {
		return r == '\n' || r == ';' || r == ','
	})
}

func cutAssignment(part string) (string, string, bool) {
	idx := strings.IndexAny(part, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(part[:idx])
	value := strings.Trim(strings.TrimSpace(part[idx+1:]), `"'`)
	return key, value, key != ""
}

// parseValue keeps text fields verbatim so codes like "012345" survive.
func parseValue(raw, fieldType string) any {
	switch fieldType {
	case "string", "date", "file":
		return raw
	}
	return parseScalar(raw)
}

func parseScalar(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return raw
}

// FailbackPatchGenerator returns the first generator result without an error.
type FailbackPatchGenerator struct {
	generators []Generator
}

func NewFailbackPatchGenerator(generators ...Generator) *FailbackPatchGenerator {
	return &FailbackPatchGenerator{generators: generators}
}

func (g *FailbackPatchGenerator) GeneratePatch(ctx context.Context, req *types.ToolRequest) (*UpdateFormArgs, error) {
	lastErr := errors.New("no patch generator configured")
	for _, gen := range g.generators {
		args, err := gen.GeneratePatch(ctx, req)
		if err == nil {
			return args, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

package patch

import (
	"context"

	"github.com/tbxark/stepform/types"
)

const (
	OperationAdd     = "add"
	OperationRemove  = "remove"
	OperationReplace = "replace"
)

type Operation struct {
	Op    string `json:"op" jsonschema:"required,enum=add,enum=remove,enum=replace,description=RFC6902 operation"`
	Path  string `json:"path" jsonschema:"required,description=JSON pointer of the field such as /amount"`
	Value any    `json:"value,omitempty" jsonschema:"description=New value of the field"`
}

type UpdateFormArgs struct {
	Ops []Operation `json:"ops" jsonschema:"description=Patch operations; empty when the input carries no field values"`
}

// Generator extracts field edits from the latest user answer.
type Generator interface {
	GeneratePatch(ctx context.Context, req *types.ToolRequest) (*UpdateFormArgs, error)
}

// Package form holds the values of one form instance, the snapshot they are
// compared against and the derived validation and dirty state.
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/tbxark/stepform/patch"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/types"
)

var (
	ErrUnknownField  = errors.New("form: unknown field")
	ErrReadOnlyField = errors.New("form: field is read-only")
)

// PendingSubmission is the state of the current submission attempt.
type PendingSubmission struct {
	InFlight  bool
	LastError error
}

type Container struct {
	mu      sync.RWMutex
	schema  *schema.Schema
	values  types.Values
	initial types.Values
	touched map[string]bool
	step    int
	result  schema.Result
	dirty   bool
	pending PendingSubmission

	observers []func(dirty bool)
}

func New(s *schema.Schema) *Container {
	c := &Container{
		schema:  s,
		values:  types.Values{},
		initial: types.Values{},
		touched: map[string]bool{},
		step:    1,
	}
	c.result = s.Validate(c.values, c.step, c.touched)
	return c
}

// OnDirty registers fn to be called whenever the dirty flag flips.
func (c *Container) OnDirty(fn func(dirty bool)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Container) Schema() *schema.Schema {
	return c.schema
}

// Hydrate replaces the values and the initial snapshot at once. Prior
// snapshots are discarded, never merged.
func (c *Container) Hydrate(values types.Values) schema.Result {
	c.mu.Lock()
	c.values = values.Clone()
	c.initial = values.Clone()
	c.touched = map[string]bool{}
	c.pending = PendingSubmission{}
	res, flipped := c.recomputeLocked()
	c.mu.Unlock()
	slog.Debug("Form hydrated", "fields", len(values))
	c.notify(flipped, false)
	return res
}

// SetField updates one value and re-validates. Setting the value a field
// already holds changes nothing.
func (c *Container) SetField(name string, value any) (schema.Result, error) {
	return c.SetFields(types.Values{name: value})
}

func (c *Container) SetFields(values types.Values) (schema.Result, error) {
	for name := range values {
		f, ok := c.schema.Field(name)
		if !ok {
			return c.Result(), fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		if f.ReadOnly {
			return c.Result(), fmt.Errorf("%w: %s", ErrReadOnlyField, name)
		}
	}
	c.mu.Lock()
	changed := false
	for name, value := range values {
		if current, ok := c.values[name]; ok && equalValues(current, value) {
			continue
		}
		c.values[name] = value
		c.touched[name] = true
		changed = true
	}
	if !changed {
		res := c.result
		c.mu.Unlock()
		return res, nil
	}
	res, flipped := c.recomputeLocked()
	dirty := c.dirty
	c.mu.Unlock()
	c.notify(flipped, dirty)
	return res, nil
}

// ApplyPatch applies RFC6902 operations restricted to the schema fields.
func (c *Container) ApplyPatch(ops []patch.Operation) (schema.Result, error) {
	if len(ops) == 0 {
		return c.Result(), nil
	}
	allowed := make(map[string]bool)
	for _, f := range c.schema.Fields() {
		allowed[f.Name] = !f.ReadOnly
	}
	c.mu.Lock()
	next, err := patch.Apply(c.values, ops, allowed)
	if err != nil {
		res := c.result
		c.mu.Unlock()
		return res, fmt.Errorf("failed to apply patch: %w", err)
	}
	for _, op := range ops {
		c.touched[patch.Field(op.Path)] = true
	}
	c.values = next
	res, flipped := c.recomputeLocked()
	dirty := c.dirty
	c.mu.Unlock()
	c.notify(flipped, dirty)
	return res, nil
}

// Reset restores the values captured by the last Hydrate.
func (c *Container) Reset() schema.Result {
	c.mu.Lock()
	c.values = c.initial.Clone()
	c.touched = map[string]bool{}
	res, flipped := c.recomputeLocked()
	c.mu.Unlock()
	c.notify(flipped, false)
	return res
}

// SetStep changes the step validation is evaluated for.
func (c *Container) SetStep(step int) schema.Result {
	c.mu.Lock()
	c.step = step
	res, _ := c.recomputeLocked()
	c.mu.Unlock()
	return res
}

func (c *Container) Step() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// Clear removes step-scoped transient values, such as collected OTP digits,
// together with their touched state.
func (c *Container) Clear(names ...string) schema.Result {
	c.mu.Lock()
	for _, name := range names {
		delete(c.values, name)
		delete(c.touched, name)
	}
	res, flipped := c.recomputeLocked()
	dirty := c.dirty
	c.mu.Unlock()
	c.notify(flipped, dirty)
	return res
}

// Validate evaluates the current values for an arbitrary step without
// changing the container.
func (c *Container) Validate(step int) schema.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schema.Validate(c.values, step, c.touched)
}

func (c *Container) Values() types.Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values.Clone()
}

func (c *Container) Initial() types.Values {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initial.Clone()
}

func (c *Container) Result() schema.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

func (c *Container) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *Container) Touched(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.touched[name]
}

// Changes returns an RFC7386 merge patch from the snapshot to the values.
func (c *Container) Changes() ([]byte, error) {
	c.mu.RLock()
	initial, values := c.initial, c.values
	c.mu.RUnlock()
	from, err := json.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initial values: %w", err)
	}
	to, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal values: %w", err)
	}
	return jsonpatch.CreateMergePatch(from, to)
}

// Diff returns the RFC6902 operations turning the snapshot into the values.
func (c *Container) Diff() ([]patch.Operation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return patch.Diff(c.initial, c.values)
}

// BeginSubmit marks a submission in flight. It returns false when one already is.
func (c *Container) BeginSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending.InFlight {
		return false
	}
	c.pending = PendingSubmission{InFlight: true}
	return true
}

func (c *Container) EndSubmit(err error) {
	c.mu.Lock()
	c.pending = PendingSubmission{LastError: err}
	c.mu.Unlock()
}

func (c *Container) ClearPending() {
	c.mu.Lock()
	c.pending = PendingSubmission{}
	c.mu.Unlock()
}

func (c *Container) Pending() PendingSubmission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending
}

func (c *Container) recomputeLocked() (schema.Result, bool) {
	c.result = c.schema.Validate(c.values, c.step, c.touched)
	dirty := !equalValues(c.comparable(c.values), c.comparable(c.initial))
	flipped := dirty != c.dirty
	c.dirty = dirty
	return c.result, flipped
}

func (c *Container) notify(flipped, dirty bool) {
	if !flipped {
		return
	}
	c.mu.RLock()
	observers := append([]func(bool){}, c.observers...)
	c.mu.RUnlock()
	for _, fn := range observers {
		fn(dirty)
	}
}

// comparable drops values that count as absent so that clearing a field
// that was never set does not dirty the form.
func (c *Container) comparable(values types.Values) types.Values {
	out := make(types.Values, len(values))
	for name, v := range values {
		blank := schema.BlankUnset
		if f, ok := c.schema.Field(name); ok {
			blank = f.Blank
		}
		if schema.IsEmpty(v, blank) {
			continue
		}
		out[name] = v
	}
	return out
}

var compareOptions = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
	cmp.FilterValues(func(x, y any) bool {
		_, okX := numeric(x)
		_, okY := numeric(y)
		return okX && okY
	}, cmp.Comparer(func(x, y any) bool {
		a, _ := numeric(x)
		b, _ := numeric(y)
		return a == b
	})),
}

func equalValues(a, b any) bool {
	return cmp.Equal(a, b, compareOptions...)
}

func numeric(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return schema.Number(v)
	default:
		return 0, false
	}
}

package stepform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/form"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/i18n"
	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/patch"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/step"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
	"golang.org/x/text/language"
)

// Workflow is one live form instance.
type Workflow struct {
	def        Definition
	schema     *schema.Schema
	form       *form.Container
	controller *step.Controller
	shell      *dialog.Shell
	guard      *guard.Guard
	notifier   notify.Notifier
	translator *i18n.Translator
	lang       language.Tag
	owner      string
	unsub      func()
}

type Option func(*Workflow)

func WithNotifier(n notify.Notifier) Option {
	return func(w *Workflow) {
		if n != nil {
			w.notifier = n
		}
	}
}

func WithTranslator(t *i18n.Translator) Option {
	return func(w *Workflow) {
		if t != nil {
			w.translator = t
		}
	}
}

func WithLanguage(tag language.Tag) Option {
	return func(w *Workflow) {
		w.lang = tag
	}
}

// WithOwner sets the identity the unsaved-changes guard tracks the workflow
// under.
func WithOwner(owner string) Option {
	return func(w *Workflow) {
		if owner != "" {
			w.owner = owner
		}
	}
}

// New builds a workflow from def. g is the session's unsaved-changes guard
// and is shared by every workflow of the session.
func New(def Definition, g *guard.Guard, opts ...Option) (*Workflow, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.New("stepform: guard is required")
	}
	w := &Workflow{
		def:        def,
		guard:      g,
		notifier:   notify.NewLogNotifier(nil),
		translator: i18n.Default(),
		lang:       language.English,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.owner == "" {
		w.owner = def.Name + "-" + uuid.NewString()
	}

	s, err := schema.New(def.Fields, def.Refinements,
		schema.WithTitle(def.Title),
		schema.WithTranslator(w.translator),
		schema.WithLanguage(w.lang),
	)
	if err != nil {
		return nil, fmt.Errorf("build schema for %q: %w", def.Name, err)
	}
	w.schema = s
	w.form = form.New(s)
	w.shell = dialog.New(w.form, g,
		dialog.WithOwner(w.owner),
		dialog.WithFetcher(def.Fetch),
		dialog.WithSave(w.save),
		dialog.WithOnClose(w.onClosed),
		dialog.WithOnHydrate(w.onHydrated),
	)
	w.controller, err = step.New(w.form, def.Steps, step.WithClose(w.shell.Close))
	if err != nil {
		return nil, fmt.Errorf("build steps for %q: %w", def.Name, err)
	}
	w.unsub = g.Subscribe(w.onPrompt)
	return w, nil
}

func (w *Workflow) Name() string {
	return w.def.Name
}

func (w *Workflow) Owner() string {
	return w.owner
}

func (w *Workflow) Schema() *schema.Schema {
	return w.schema
}

func (w *Workflow) Form() *form.Container {
	return w.form
}

// Open opens the dialog, hydrates it and starts at step 1. A response that
// arrives after the dialog was closed or reopened is discarded silently.
func (w *Workflow) Open(ctx context.Context) (View, error) {
	_, err := w.shell.Open(ctx)
	switch {
	case errors.Is(err, dialog.ErrStale):
		return w.View(), nil
	case err != nil:
		w.toast(ctx, notify.KindError, w.translator.Message(w.lang, i18n.KeyGenericFailure))
		return w.View(), err
	}
	slog.Debug("Workflow opened", "form", w.def.Name, "owner", w.owner)
	return w.View(), nil
}

// SetField edits one value. Validation errors are returned in the view, never
// as toasts.
func (w *Workflow) SetField(name string, value any) (View, error) {
	_, err := w.form.SetField(name, value)
	return w.View(), err
}

func (w *Workflow) SetFields(values types.Values) (View, error) {
	_, err := w.form.SetFields(values)
	return w.View(), err
}

func (w *Workflow) ApplyPatch(ops []patch.Operation) (View, error) {
	_, err := w.form.ApplyPatch(ops)
	return w.View(), err
}

func (w *Workflow) Advance(ctx context.Context) (View, error) {
	st, err := w.controller.Advance(ctx)
	w.report(ctx, st, err)
	return w.View(), err
}

func (w *Workflow) Retreat(ctx context.Context) (View, error) {
	_, err := w.controller.Retreat(ctx)
	return w.View(), err
}

func (w *Workflow) Close(ctx context.Context) (View, error) {
	_, err := w.controller.Close(ctx)
	return w.View(), err
}

func (w *Workflow) Reset() (View, error) {
	_, err := w.controller.Reset()
	return w.View(), err
}

func (w *Workflow) Retry(ctx context.Context) (View, error) {
	st, err := w.controller.Retry(ctx)
	w.report(ctx, st, err)
	return w.View(), err
}

func (w *Workflow) Recover(ctx context.Context) (View, error) {
	st, err := w.controller.Recover(ctx)
	w.report(ctx, st, err)
	return w.View(), err
}

// Reload re-hydrates after a context switch, confirming unsaved changes first.
func (w *Workflow) Reload(ctx context.Context) (View, error) {
	_, err := w.shell.Reload(ctx)
	if err != nil && !errors.Is(err, dialog.ErrStale) && !errors.Is(err, dialog.ErrNotOpen) {
		w.toast(ctx, notify.KindError, w.translator.Message(w.lang, i18n.KeyGenericFailure))
	}
	return w.View(), err
}

// Save submits the whole form through the last step, whatever step the
// workflow is on.
func (w *Workflow) Save(ctx context.Context) (View, error) {
	err := w.save(ctx)
	return w.View(), err
}

// Resolve answers a pending unsaved-changes confirmation owned by this
// workflow.
func (w *Workflow) Resolve(ctx context.Context, d guard.Decision) (View, error) {
	if p, ok := w.guard.Pending(); !ok || p.Owner != w.owner {
		return w.View(), guard.ErrNoPendingRequest
	}
	err := w.guard.Resolve(ctx, d)
	if err == nil && d == guard.DecisionDiscard {
		w.toast(ctx, notify.KindInfo, w.translator.Message(w.lang, i18n.KeyDiscarded))
	}
	return w.View(), err
}

// Destroy releases the dialog and its guard entry.
func (w *Workflow) Destroy() {
	w.unsub()
	w.shell.Destroy()
}

func (w *Workflow) save(ctx context.Context) error {
	st, err := w.controller.Save(ctx)
	w.report(ctx, st, err)
	return err
}

func (w *Workflow) onClosed() {
	w.controller.MarkClosed()
}

func (w *Workflow) onHydrated() {
	if _, err := w.controller.Reset(); err != nil {
		slog.Debug("Reset after hydration skipped", "form", w.def.Name, "error", err)
	}
}

func (w *Workflow) onPrompt(p guard.Prompt) {
	if p.Owner != w.owner || !p.Open {
		return
	}
	w.toast(context.Background(), notify.KindWarning, w.translator.Message(w.lang, i18n.KeyUnsavedChanges))
}

// report turns a controller outcome into a toast. Field-level errors and busy
// rejections stay silent.
func (w *Workflow) report(ctx context.Context, st step.State, err error) {
	var failure *submit.Failure
	switch {
	case err == nil && st.Kind == types.KindSucceeded:
		w.toast(ctx, notify.KindSuccess, w.translator.Message(w.lang, i18n.KeySaved))
	case errors.As(err, &failure) && st.Failure != nil:
		w.toast(ctx, notify.KindError, w.def.Codes.Message(w.translator, w.lang, *st.Failure))
	case errors.As(err, &failure):
		w.toast(ctx, notify.KindError, w.translator.Message(w.lang, i18n.KeyGenericFailure))
	}
}

func (w *Workflow) toast(ctx context.Context, kind notify.Kind, message string) {
	w.notifier.Notify(ctx, notify.New(kind, message))
}

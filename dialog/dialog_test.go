package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/tbxark/stepform/form"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/schema"
	"github.com/tbxark/stepform/types"
)

func newForm(t *testing.T) *form.Container {
	t.Helper()
	s, err := schema.New([]schema.FieldSpec{
		{Name: "name"},
		{Name: "email", Optional: true, Rules: []schema.Rule{schema.Email()}},
	}, nil)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	return form.New(s)
}

func static(values types.Values) FetchFunc {
	return func(ctx context.Context) (types.Values, error) {
		return values.Clone(), nil
	}
}

func TestOpenHydrates(t *testing.T) {
	t.Parallel()
	f := newForm(t)
	s := New(f, guard.New(), WithFetcher(static(types.Values{"name": "Club"})))
	if s.Status() != StatusClosed {
		t.Fatalf("new dialog must be closed, got %s", s.Status())
	}
	id, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if id == uuid.Nil || s.Instance() != id || s.Status() != StatusOpen {
		t.Fatalf("instance %s status %s", s.Instance(), s.Status())
	}
	if diff := cmp.Diff(types.Values{"name": "Club"}, f.Initial()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchErrorKeepsDialogOpen(t *testing.T) {
	t.Parallel()
	boom := errors.New("backend down")
	s := New(newForm(t), guard.New(), WithFetcher(FetchFunc(func(ctx context.Context) (types.Values, error) {
		return nil, boom
	})))
	if _, err := s.Open(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if s.Status() != StatusOpen || !errors.Is(s.FetchError(), boom) {
		t.Errorf("status %s fetch error %v", s.Status(), s.FetchError())
	}
}

func TestCloseCancelsFetch(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	f := newForm(t)
	s := New(f, guard.New(), WithFetcher(FetchFunc(func(ctx context.Context) (types.Values, error) {
		close(started)
		<-ctx.Done()
		return types.Values{"name": "late"}, ctx.Err()
	})))

	errc := make(chan error, 1)
	go func() {
		_, err := s.Open(context.Background())
		errc <- err
	}()
	<-started
	closed, err := s.Close(context.Background())
	if err != nil || !closed {
		t.Fatalf("Close = %v, %v", closed, err)
	}
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if len(f.Values()) != 0 {
		t.Errorf("stale response must not reach the form, got %v", f.Values())
	}
}

func TestReopenDiscardsEarlierResponse(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	calls := 0
	first := make(chan struct{})
	release := make(chan struct{})
	f := newForm(t)
	s := New(f, guard.New(), WithFetcher(FetchFunc(func(ctx context.Context) (types.Values, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(first)
			<-release
			return types.Values{"name": "first"}, nil
		}
		return types.Values{"name": "second"}, nil
	})))

	errc := make(chan error, 1)
	go func() {
		_, err := s.Open(context.Background())
		errc <- err
	}()
	<-first
	if _, err := s.Open(context.Background()); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	close(release)
	if err := <-errc; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if got := f.Initial()["name"]; got != "second" {
		t.Errorf("snapshot name = %v, want second", got)
	}
}

func TestDirtyCloseDiscard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := guard.New()
	f := newForm(t)
	saves := 0
	closes := 0
	s := New(f, g,
		WithFetcher(static(types.Values{"name": "Club"})),
		WithSave(func(context.Context) error { saves++; return nil }),
		WithOnClose(func() { closes++ }),
	)
	if _, err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SetField("name", "Renamed"); err != nil {
		t.Fatal(err)
	}
	if !g.DirtyOwner(s.Owner()) {
		t.Fatal("dirty flip must reach the guard")
	}

	closed, err := s.Close(ctx)
	if err != nil || closed {
		t.Fatalf("dirty close must be intercepted: %v, %v", closed, err)
	}
	if s.Status() != StatusOpen {
		t.Fatal("dialog must stay open while the confirmation is pending")
	}
	if err := g.Resolve(ctx, guard.DecisionDiscard); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Status() != StatusClosed || closes != 1 {
		t.Errorf("status %s closes %d", s.Status(), closes)
	}
	if saves != 0 {
		t.Error("discard must not save")
	}
	if diff := cmp.Diff(f.Initial(), f.Values()); diff != "" {
		t.Errorf("discard must restore the snapshot (-want +got):\n%s", diff)
	}
	if g.Dirty() {
		t.Error("guard must be clean after discard")
	}
}

func TestDirtyCloseSaveClosesOnlyAfterSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := guard.New()
	f := newForm(t)
	saveErr := errors.New("rejected")
	s := New(f, g,
		WithFetcher(static(types.Values{"name": "Club"})),
		WithSave(func(context.Context) error {
			if saveErr != nil {
				return saveErr
			}
			f.Hydrate(f.Values())
			return nil
		}),
	)
	if _, err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SetField("name", "Renamed"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := g.Resolve(ctx, guard.DecisionSave); !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if s.Status() != StatusOpen {
		t.Fatal("failed save must keep the dialog open")
	}
	saveErr = nil
	if err := g.Resolve(ctx, guard.DecisionSave); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Status() != StatusClosed {
		t.Error("successful save must close the dialog")
	}
	if f.Initial()["name"] != "Renamed" {
		t.Error("saved values must be kept")
	}
}

func TestReloadRoutesThroughGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := guard.New()
	f := newForm(t)
	var mu sync.Mutex
	name := "A"
	s := New(f, g, WithFetcher(FetchFunc(func(ctx context.Context) (types.Values, error) {
		mu.Lock()
		defer mu.Unlock()
		return types.Values{"name": name}, nil
	})))
	if _, err := s.Reload(ctx); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("reload of a closed dialog: %v", err)
	}
	if _, err := s.Open(ctx); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	name = "B"
	mu.Unlock()

	if _, err := f.SetField("name", "edited"); err != nil {
		t.Fatal(err)
	}
	reloaded, err := s.Reload(ctx)
	if err != nil || reloaded {
		t.Fatalf("dirty reload must wait for a decision: %v, %v", reloaded, err)
	}
	if err := g.Resolve(ctx, guard.DecisionDiscard); err != nil {
		t.Fatal(err)
	}
	if f.Initial()["name"] != "B" || f.Dirty() {
		t.Errorf("reload must replace the snapshot, got %v dirty=%v", f.Initial(), f.Dirty())
	}

	reloaded, err = s.Reload(ctx)
	if err != nil || !reloaded {
		t.Errorf("clean reload: %v, %v", reloaded, err)
	}
}

func TestDestroyForgetsOwner(t *testing.T) {
	t.Parallel()
	g := guard.New()
	f := newForm(t)
	s := New(f, g, WithOwner("club-settings"))
	if _, err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SetField("name", "x"); err != nil {
		t.Fatal(err)
	}
	s.Destroy()
	if g.Dirty() || s.Status() != StatusClosed || s.Owner() != "club-settings" {
		t.Errorf("dirty %v status %s owner %s", g.Dirty(), s.Status(), s.Owner())
	}
}

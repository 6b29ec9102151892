package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/config"
	"github.com/tbxark/stepform/guard"
	"github.com/tbxark/stepform/metrics"
	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/types"
)

func TestDefinitionsAgainstBackend(t *testing.T) {
	t.Parallel()
	var gotAuth, gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/wallet", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"balance": 80}`)
	})
	mux.HandleFunc("POST /api/withdrawals", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success": false, "error": {"message": "transactionMinimalValue", "value": 10}}`)
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	conf, err := config.Parse([]byte(`
backend:
  base_url: ` + backend.URL + `/api
  headers:
    Authorization: Bearer t0ken
forms:
  - name: withdrawal
    fetch: wallet
    submit: [withdrawals]
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	m := metrics.New()
	defs, err := definitions(conf, m)
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("defs = %d", len(defs))
	}

	ctx := context.Background()
	rec := &notify.Recorder{}
	wf, err := stepform.New(defs[0], guard.New(), stepform.WithNotifier(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := wf.Open(ctx)
	if err != nil || v.Values["balance"] != 80.0 {
		t.Fatalf("open: %v %+v", err, v.Values)
	}
	if _, err := wf.SetFields(types.Values{"account": "acc-1", "amount": 5.0}); err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	wf.Advance(ctx)
	v, _ = wf.Advance(ctx)
	if v.Kind != types.KindFailed || v.Failure.Message != "minimum value: 10" {
		t.Fatalf("view = %+v", v)
	}
	if gotAuth != "Bearer t0ken" || !strings.Contains(gotBody, `"amount":5`) {
		t.Fatalf("request auth %q body %s", gotAuth, gotBody)
	}
	expected := `
# HELP stepform_submissions_total Form submissions by form and outcome.
# TYPE stepform_submissions_total counter
stepform_submissions_total{form="withdrawal",outcome="domain_failure"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "stepform_submissions_total"); err != nil {
		t.Error(err)
	}
}

func TestSettingsSubmitMergePatch(t *testing.T) {
	t.Parallel()
	var gotMethod, gotType, gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/club/settings", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name": "Chess club", "currency": "USD"}`)
	})
	mux.HandleFunc("/api/club/settings", func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		_, _ = io.WriteString(w, `{"success": true}`)
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	conf, err := config.Parse([]byte(`
backend:
  base_url: ` + backend.URL + `/api
forms:
  - name: club_settings
    fetch: club/settings
    method: patch
    merge_patch: true
    submit: [club/settings]
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	defs, err := definitions(conf, nil)
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}

	ctx := context.Background()
	wf, err := stepform.New(defs[0], guard.New())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := wf.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := wf.SetFields(types.Values{"name": "Chess club Moscow"}); err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	v, err := wf.Advance(ctx)
	if err != nil || v.Kind != types.KindSucceeded {
		t.Fatalf("advance: %v %+v", err, v)
	}
	if gotMethod != http.MethodPatch || gotType != "application/merge-patch+json" || gotBody != `{"name":"Chess club Moscow"}` {
		t.Fatalf("request %s %q %s", gotMethod, gotType, gotBody)
	}
}

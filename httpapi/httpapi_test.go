package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/forms"
	"github.com/tbxark/stepform/metrics"
	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/patch"
	"github.com/tbxark/stepform/submit"
	"github.com/tbxark/stepform/types"
)

type response struct {
	View  *stepform.View `json:"view"`
	Error *apiError      `json:"error"`
}

type client struct {
	t   *testing.T
	srv *httptest.Server
}

func (c *client) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rd)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (c *client) view(method, path string, body any, wantStatus int) response {
	c.t.Helper()
	status, data := c.do(method, path, body)
	if status != wantStatus {
		c.t.Fatalf("%s %s: status %d, want %d: %s", method, path, status, wantStatus, data)
	}
	var out response
	if err := sonic.Unmarshal(data, &out); err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func newTestServer(t *testing.T, call submit.CallFunc) (*client, string) {
	t.Helper()
	fetch := dialog.FetchFunc(func(ctx context.Context) (types.Values, error) {
		return types.Values{"balance": 100.0}, nil
	})
	def := forms.Withdrawal(fetch, submit.NewFunc(call, forms.WithdrawalCodes, "account", "amount"))
	srv := httptest.NewServer(New([]stepform.Definition{def}).Routes())
	t.Cleanup(srv.Close)
	c := &client{t: t, srv: srv}

	status, data := c.do(http.MethodPost, "/api/sessions", nil)
	if status != http.StatusCreated {
		t.Fatalf("create session: %d %s", status, data)
	}
	var created map[string]string
	if err := sonic.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return c, "/api/sessions/" + created["session"]
}

func TestWithdrawalOverHTTP(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c, base := newTestServer(t, func(ctx context.Context, values types.Values) (types.Values, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		return types.Values{"id": "w-1"}, nil
	})
	form := base + "/forms/withdrawal"

	out := c.view(http.MethodPost, form+"/open", nil, http.StatusOK)
	if out.View.Status != dialog.StatusOpen || out.View.Values["balance"] != 100.0 {
		t.Fatalf("open: %+v", out.View)
	}

	out = c.view(http.MethodPost, form+"/advance", nil, http.StatusUnprocessableEntity)
	if out.Error.Code != "invalid" || out.View.Step != 1 {
		t.Fatalf("advance without account: %+v", out)
	}

	c.view(http.MethodPut, form+"/fields", fieldsRequest{Values: types.Values{"account": "acc-1"}}, http.StatusOK)
	out = c.view(http.MethodPost, form+"/advance", nil, http.StatusOK)
	if out.View.Step != 2 {
		t.Fatalf("step = %d", out.View.Step)
	}

	out = c.view(http.MethodPut, form+"/fields", fieldsRequest{Values: types.Values{"balance": 1000.0}}, http.StatusUnprocessableEntity)
	if out.Error.Code != "read_only_field" {
		t.Fatalf("balance edit: %+v", out.Error)
	}

	body := map[string]any{"ops": []map[string]any{{"op": "add", "path": "/amount", "value": 40}}}
	out = c.view(http.MethodPatch, form, body, http.StatusOK)
	if out.View.Values["amount"] != 40.0 || !out.View.Valid {
		t.Fatalf("patch: %+v", out.View)
	}

	out = c.view(http.MethodPost, form+"/advance", nil, http.StatusBadGateway)
	if out.View.Kind != types.KindFailed || out.View.Failure.Recovery != submit.RecoveryRetry {
		t.Fatalf("transport failure: %+v", out.View)
	}

	out = c.view(http.MethodPost, form+"/retry", nil, http.StatusOK)
	if out.View.Kind != types.KindSucceeded || calls.Load() != 2 {
		t.Fatalf("retry: %s after %d calls", out.View.Kind, calls.Load())
	}

	status, data := c.do(http.MethodGet, base+"/toasts", nil)
	var toasts struct {
		Toasts []notify.Toast `json:"toasts"`
	}
	if err := sonic.Unmarshal(data, &toasts); err != nil || status != http.StatusOK {
		t.Fatalf("toasts: %d %v", status, err)
	}
	if len(toasts.Toasts) != 2 || toasts.Toasts[0].Kind != notify.KindError || toasts.Toasts[1].Kind != notify.KindSuccess {
		t.Fatalf("toasts = %+v", toasts.Toasts)
	}
}

func TestCloseDirtyOverHTTP(t *testing.T) {
	t.Parallel()
	c, base := newTestServer(t, func(ctx context.Context, values types.Values) (types.Values, error) {
		return nil, nil
	})
	form := base + "/forms/withdrawal"

	c.view(http.MethodPost, form+"/open", nil, http.StatusOK)
	c.view(http.MethodPut, form+"/fields", fieldsRequest{Values: types.Values{"account": "acc-1"}}, http.StatusOK)
	out := c.view(http.MethodPost, form+"/close", nil, http.StatusOK)
	if out.View.Prompt == nil || out.View.Status != dialog.StatusOpen {
		t.Fatalf("close while dirty: %+v", out.View)
	}

	status, data := c.do(http.MethodGet, base+"/prompt", nil)
	if status != http.StatusOK || !bytes.Contains(data, []byte(`"owner"`)) {
		t.Fatalf("prompt: %d %s", status, data)
	}

	out = c.view(http.MethodPost, base+"/resolve", resolveRequest{Decision: "discard"}, http.StatusOK)
	if out.View.Kind != types.KindClosed || out.View.Dirty {
		t.Fatalf("discard: %+v", out.View)
	}

	out = c.view(http.MethodPost, base+"/resolve", resolveRequest{Decision: "discard"}, http.StatusConflict)
	if out.Error.Code != "no_pending_request" {
		t.Fatalf("second resolve: %+v", out.Error)
	}
}

func (c *client) session(method, path string, body any, wantStatus int) sessionResponse {
	c.t.Helper()
	status, data := c.do(method, path, body)
	if status != wantStatus {
		c.t.Fatalf("%s %s: status %d, want %d: %s", method, path, status, wantStatus, data)
	}
	var out sessionResponse
	if err := sonic.Unmarshal(data, &out); err != nil {
		c.t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func TestSessionNavigationWhileDirty(t *testing.T) {
	t.Parallel()
	c, base := newTestServer(t, nil)
	form := base + "/forms/withdrawal"

	out := c.session(http.MethodPost, base+"/navigate", nil, http.StatusOK)
	if !out.Navigated {
		t.Fatalf("clean navigate: %+v", out)
	}

	c.view(http.MethodPost, form+"/open", nil, http.StatusOK)
	c.view(http.MethodPut, form+"/fields", fieldsRequest{Values: types.Values{"account": "acc-1"}}, http.StatusOK)

	status, data := c.do(http.MethodGet, form+"/changes", nil)
	var changes patchRequest
	if err := sonic.Unmarshal(data, &changes); err != nil || status != http.StatusOK {
		t.Fatalf("changes: %d %s", status, data)
	}
	wantOps := []patch.Operation{{Op: patch.OperationAdd, Path: "/account", Value: "acc-1"}}
	if diff := cmp.Diff(wantOps, changes.Ops); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}

	out = c.session(http.MethodPost, base+"/navigate", navigateRequest{Reason: "switch client"}, http.StatusConflict)
	if out.Navigated || out.Prompt == nil || out.Prompt.Owner != "" || out.Prompt.Reason != "switch client" {
		t.Fatalf("dirty navigate: %+v", out)
	}
	out = c.session(http.MethodPost, base+"/resolve", resolveRequest{Decision: "stay"}, http.StatusOK)
	if out.Navigated || out.Prompt != nil {
		t.Fatalf("stay: %+v", out)
	}
	if v := c.view(http.MethodGet, form, nil, http.StatusOK); !v.View.Dirty || v.View.Values["account"] != "acc-1" {
		t.Fatalf("stay must keep the edits: %+v", v.View)
	}

	out = c.session(http.MethodDelete, base, nil, http.StatusConflict)
	if out.Error == nil || out.Error.Code != "unsaved_changes" || out.Prompt == nil || out.Prompt.Reason != "teardown" {
		t.Fatalf("dirty delete: %+v", out)
	}
	c.view(http.MethodGet, base+"/toasts", nil, http.StatusOK)

	out = c.session(http.MethodPost, base+"/resolve", resolveRequest{Decision: "discard"}, http.StatusOK)
	if !out.Navigated {
		t.Fatalf("discard: %+v", out)
	}
	c.view(http.MethodGet, base+"/toasts", nil, http.StatusNotFound)
}

func TestUnknownResources(t *testing.T) {
	t.Parallel()
	c, base := newTestServer(t, nil)

	tests := []struct {
		method, path string
		status       int
		code         string
	}{
		{http.MethodPost, "/api/sessions/not-a-uuid/forms/withdrawal/open", http.StatusNotFound, "unknown_session"},
		{http.MethodPost, base + "/forms/loan/open", http.StatusNotFound, "unknown_form"},
		{http.MethodPost, base + "/forms/withdrawal/advance", http.StatusNotFound, "not_opened"},
	}
	for _, tt := range tests {
		out := c.view(tt.method, tt.path, nil, tt.status)
		if out.Error == nil || out.Error.Code != tt.code {
			t.Errorf("%s %s: %+v", tt.method, tt.path, out.Error)
		}
	}

	status, _ := c.do(http.MethodDelete, base, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete session: %d", status)
	}
	c.view(http.MethodGet, base+"/toasts", nil, http.StatusNotFound)
}

func TestCompressedResponses(t *testing.T) {
	t.Parallel()
	c, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, c.srv.URL+"/api/forms", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /api/forms: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", resp.Header.Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Contains(data, []byte("withdrawal")) {
		t.Errorf("body = %s", data)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(New(nil, WithMetrics(metrics.New())).Routes())
	t.Cleanup(srv.Close)
	c := &client{t: t, srv: srv}

	if status, _ := c.do(http.MethodGet, "/api/forms", nil); status != http.StatusOK {
		t.Fatalf("list forms: %d", status)
	}
	status, data := c.do(http.MethodGet, "/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("metrics: %d", status)
	}
	if !bytes.Contains(data, []byte(`stepform_http_requests_total{method="GET",route="/api/forms",status="200"} 1`)) {
		t.Errorf("exposition:\n%s", data)
	}
}

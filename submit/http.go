package submit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tbxark/stepform/types"
)

// Envelope is the response body shared by the backend's submit endpoints.
type Envelope struct {
	Success bool                `json:"success"`
	Data    types.Values        `json:"data,omitempty"`
	Error   *EnvelopeError      `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

type EnvelopeError struct {
	Message string         `json:"message"`
	Value   any            `json:"value,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

// HTTPAdapter submits values as a JSON body. It never retries.
type HTTPAdapter struct {
	client *http.Client
	method string
	url    string
	header http.Header
	codes  Codes
	fields []string
	merge  bool
}

type HTTPOption func(*HTTPAdapter)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdapter) {
		if c != nil {
			a.client = c
		}
	}
}

func WithHeader(key, value string) HTTPOption {
	return func(a *HTTPAdapter) {
		a.header.Set(key, value)
	}
}

func WithFields(fields ...string) HTTPOption {
	return func(a *HTTPAdapter) {
		a.fields = append(a.fields, fields...)
	}
}

// WithMergePatch sends only the changed values as an RFC7386 merge patch
// when the caller provides one.
func WithMergePatch() HTTPOption {
	return func(a *HTTPAdapter) {
		a.merge = true
	}
}

func NewHTTPAdapter(method, url string, codes Codes, opts ...HTTPOption) *HTTPAdapter {
	if method == "" {
		method = http.MethodPost
	}
	a := &HTTPAdapter{
		client: http.DefaultClient,
		method: method,
		url:    url,
		header: make(http.Header),
		codes:  codes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *HTTPAdapter) Submit(ctx context.Context, values types.Values) Result {
	body, err := sonic.Marshal(values)
	if err != nil {
		return TransportFailure(fmt.Errorf("encode values: %w", err))
	}
	return a.submit(ctx, body, "application/json")
}

// SubmitPatch sends patch instead of the full values when the adapter was
// built WithMergePatch.
func (a *HTTPAdapter) SubmitPatch(ctx context.Context, values types.Values, patch []byte) Result {
	if !a.merge || len(patch) == 0 {
		return a.Submit(ctx, values)
	}
	return a.submit(ctx, patch, "application/merge-patch+json")
}

func (a *HTTPAdapter) submit(ctx context.Context, body []byte, contentType string) Result {
	payload, err := a.call(ctx, body, contentType)
	result := Classify(payload, err, a.codes, a.fields)
	slog.Debug("Submission finished", "method", a.method, "url", a.url, "outcome", result.Outcome, "code", result.Code)
	return result
}

func (a *HTTPAdapter) call(ctx context.Context, body []byte, contentType string) (types.Values, error) {
	req, err := http.NewRequestWithContext(ctx, a.method, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range a.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("backend status %d", resp.StatusCode)
	}

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := sonic.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	} else {
		env.Success = resp.StatusCode < http.StatusBadRequest
	}
	if env.Success && resp.StatusCode < http.StatusBadRequest {
		return env.Data, nil
	}
	return nil, env.remoteError(resp.StatusCode)
}

func (e Envelope) remoteError(status int) *RemoteError {
	re := &RemoteError{Status: status, FieldErrors: e.Errors}
	if e.Error != nil {
		re.Message = e.Error.Message
		if len(e.Error.Params) > 0 || e.Error.Value != nil {
			re.Payload = make(map[string]any, len(e.Error.Params)+1)
			for k, v := range e.Error.Params {
				re.Payload[k] = v
			}
			if e.Error.Value != nil {
				re.Payload["value"] = e.Error.Value
			}
		}
	}
	return re
}

var ErrFetchStatus = errors.New("submit: unexpected fetch status")

// HTTPFetcher loads the defaults a form hydrates from. The call is
// idempotent, so transient failures are retried.
type HTTPFetcher struct {
	client *retryablehttp.Client
	url    string
	header http.Header
}

type FetcherOption func(*HTTPFetcher)

func WithRetry(attempts int, waitMin, waitMax time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.RetryMax = attempts
		f.client.RetryWaitMin = waitMin
		f.client.RetryWaitMax = waitMax
	}
}

func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.HTTPClient.Transport = rt
	}
}

func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client.HTTPClient.Timeout = d
	}
}

func WithFetchHeader(key, value string) FetcherOption {
	return func(f *HTTPFetcher) {
		f.header.Set(key, value)
	}
}

func NewHTTPFetcher(url string, opts ...FetcherOption) *HTTPFetcher {
	cl := retryablehttp.NewClient()
	cl.RetryMax = 3
	cl.RetryWaitMin = 200 * time.Millisecond
	cl.RetryWaitMax = 2 * time.Second
	cl.Logger = slog.Default()
	f := &HTTPFetcher{client: cl, url: url, header: make(http.Header)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (types.Values, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	for k, v := range f.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch defaults: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrFetchStatus, resp.StatusCode)
	}
	values := types.Values{}
	if err := sonic.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return values, nil
}

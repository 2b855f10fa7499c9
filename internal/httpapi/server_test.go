package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"promptd/internal/engine"
	"promptd/internal/manager"
	"promptd/internal/model"
	"promptd/pkg/types"
)

type mockService struct {
	models   []types.Model
	status   types.StatusResponse
	ready    bool
	inferErr error
	result   types.InferenceResult
	records  map[string]types.RequestStatus
	cancel   map[string]bool

	lastReq types.InferRequest
	lastCtx context.Context
}

func (m *mockService) ListModels() []types.Model    { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) Submit(ctx context.Context, req types.InferRequest) (types.InferenceResult, error) {
	m.lastReq, m.lastCtx = req, ctx
	return m.result, m.inferErr
}
func (m *mockService) Infer(ctx context.Context, req types.InferRequest, w io.Writer, flush func()) error {
	m.lastReq, m.lastCtx = req, ctx
	if m.inferErr != nil {
		return m.inferErr
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(types.TokenLine{Token: "hi", Index: 0})
	if flush != nil {
		flush()
	}
	_ = enc.Encode(types.DoneLine{Done: true, InferenceResult: types.InferenceResult{Text: "hi", Tokens: 1}})
	if flush != nil {
		flush()
	}
	return nil
}
func (m *mockService) Lookup(id string) (types.RequestStatus, bool) {
	st, ok := m.records[id]
	return st, ok
}
func (m *mockService) Cancel(id string) bool { return m.cancel[id] }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2", Loaded: true}}}
	w := serve(NewMux(svc, Options{}), httptest.NewRequest(http.MethodGet, "/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if diff := cmp.Diff(svc.models, body.Models); diff != "" {
		t.Fatalf("models mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", QueueLen: 2, MaxQueueDepth: 8}}
	w := serve(NewMux(svc, Options{}), httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.QueueLen != 2 || body.MaxQueueDepth != 8 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := NewMux(&mockService{ready: true}, Options{})
	if w := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	if w := serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil)); w.Code != http.StatusOK {
		t.Fatalf("readyz: %d", w.Code)
	}
	h = NewMux(&mockService{ready: false}, Options{})
	w := serve(h, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("readyz not ready: %d %q", w.Code, w.Body.String())
	}
}

func TestInferStreamsNDJSON(t *testing.T) {
	svc := &mockService{}
	req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(`{"prompt":"hello","max_tokens":3,"stop":["\n"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(NewMux(svc, Options{}), req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"done":true`) {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
	if svc.lastReq.Prompt != "hello" || svc.lastReq.MaxTokens == nil || *svc.lastReq.MaxTokens != 3 || len(svc.lastReq.Stop) != 1 {
		t.Fatalf("request not decoded: %+v", svc.lastReq)
	}
}

func TestInferRejectsBadInput(t *testing.T) {
	h := NewMux(&mockService{}, Options{MaxBodyBytes: 64})
	cases := []struct {
		name string
		ct   string
		body string
		want int
	}{
		{"no content type", "", `{"prompt":"x"}`, http.StatusUnsupportedMediaType},
		{"text content type", "text/plain", `{"prompt":"x"}`, http.StatusUnsupportedMediaType},
		{"bad json", "application/json", `{"prompt":`, http.StatusBadRequest},
		{"empty prompt", "application/json", `{"prompt":"  "}`, http.StatusBadRequest},
		{"too large", "application/json", `{"prompt":"` + strings.Repeat("a", 128) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(tc.body))
			if tc.ct != "" {
				req.Header.Set("Content-Type", tc.ct)
			}
			w := serve(h, req)
			if w.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", w.Code, tc.want, w.Body.String())
			}
			var e types.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil || e.Code != tc.want || e.Error == "" {
				t.Fatalf("unexpected error body %q: %v", w.Body.String(), err)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid params", &engine.InvalidParamsError{Field: "top_p", Reason: "must be within [0,1]"}, http.StatusBadRequest},
		{"model not found", manager.ErrModelNotFound("x"), http.StatusNotFound},
		{"overloaded", manager.ErrOverloaded, http.StatusTooManyRequests},
		{"shutting down", manager.ErrShuttingDown, http.StatusServiceUnavailable},
		{"load error", &model.LoadError{Path: "/m.gguf", Reason: model.ReasonCorrupt}, http.StatusServiceUnavailable},
		{"backend missing", model.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{"timeout", engine.ErrTimeout, http.StatusGatewayTimeout},
		{"decode error", &engine.DecodeError{Step: 3, Err: errors.New("kv cache full")}, http.StatusInternalServerError},
		{"http error", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMux(&mockService{inferErr: tc.err}, Options{RetryAfterSeconds: 3})
			req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(`{"prompt":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			w := serve(h, req)
			if w.Code != tc.want {
				t.Fatalf("infer status=%d want %d", w.Code, tc.want)
			}
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
				t.Fatalf("errors must be JSON, got %s", ct)
			}
			if tc.want == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "3" {
				t.Fatalf("missing Retry-After")
			}
			w = serve(h, httptest.NewRequest(http.MethodGet, "/prompt?prompt=x", nil))
			if w.Code != tc.want {
				t.Fatalf("prompt status=%d want %d", w.Code, tc.want)
			}
		})
	}
}

func TestPromptForm(t *testing.T) {
	svc := &mockService{result: types.InferenceResult{ID: "r1", Text: "hello", Tokens: 1, StopReason: "end-of-sequence"}}
	h := NewMux(svc, Options{})
	form := url.Values{"prompt": {"hi"}, "max_tokens": {"7"}, "temperature": {"0.5"}, "top_k": {"1"}, "model": {"m"}, "stop": {"a", "b"}}
	req := httptest.NewRequest(http.MethodPost, "/prompt", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(h, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got types.InferenceResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(svc.result, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	seven, one, half := 7, 1, 0.5
	want := types.InferRequest{Model: "m", Prompt: "hi", MaxTokens: &seven, Temperature: &half, TopK: &one, Stop: []string{"a", "b"}}
	if diff := cmp.Diff(want, svc.lastReq); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestPromptFormErrors(t *testing.T) {
	h := NewMux(&mockService{}, Options{})
	for _, q := range []string{"", "prompt=", "prompt=x&max_tokens=many", "prompt=x&top_p=high", "prompt=x&seed=1.5"} {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/prompt?"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%q: status=%d", q, w.Code)
		}
	}
}

func TestRequestsEndpoints(t *testing.T) {
	svc := &mockService{
		records: map[string]types.RequestStatus{
			"run":  {ID: "run", State: "running"},
			"done": {ID: "done", State: "completed"},
		},
		cancel: map[string]bool{"run": true},
	}
	h := NewMux(svc, Options{})

	w := serve(h, httptest.NewRequest(http.MethodGet, "/requests/run", nil))
	var st types.RequestStatus
	if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &st) != nil || st.State != "running" {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	if w := serve(h, httptest.NewRequest(http.MethodGet, "/requests/nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("get unknown: %d", w.Code)
	}
	if w := serve(h, httptest.NewRequest(http.MethodDelete, "/requests/run", nil)); w.Code != http.StatusAccepted {
		t.Fatalf("delete running: %d", w.Code)
	}
	if w := serve(h, httptest.NewRequest(http.MethodDelete, "/requests/done", nil)); w.Code != http.StatusConflict {
		t.Fatalf("delete finished: %d", w.Code)
	}
	if w := serve(h, httptest.NewRequest(http.MethodDelete, "/requests/nope", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("delete unknown: %d", w.Code)
	}
}

func TestBaseContextCancelsWork(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	svc := &mockService{}
	h := NewMux(svc, Options{BaseContext: base})
	serve(h, httptest.NewRequest(http.MethodGet, "/prompt?prompt=x", nil))
	if svc.lastCtx.Err() == nil {
		t.Fatalf("handler context should be released when the handler returns")
	}

	ctx, stop := joinContexts(base, context.Background())
	defer stop()
	cancel()
	<-ctx.Done()
}

func TestCORS(t *testing.T) {
	h := NewMux(&mockService{}, Options{CORS: CORSOptions{Enabled: true, AllowedOrigins: []string{"http://example.com"}}})
	req := httptest.NewRequest(http.MethodOptions, "/infer", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(h, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("allow-origin=%q", got)
	}

	h = NewMux(&mockService{}, Options{})
	w = serve(h, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("CORS must be off by default, got %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewMux(&mockService{}, Options{})
	serve(h, httptest.NewRequest(http.MethodGet, "/models", nil))
	w := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "promptd_http_requests_total") {
		t.Fatalf("metrics missing http counter: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/models"`) {
		t.Fatalf("expected route pattern label")
	}
}

func TestMetricsCountRejections(t *testing.T) {
	h := NewMux(&mockService{}, Options{})
	mediaType := httpRejected.WithLabelValues("media_type")
	before := testutil.ToFloat64(mediaType)
	req := httptest.NewRequest(http.MethodPost, "/infer", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "text/plain")
	if w := serve(h, req); w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
	if got := testutil.ToFloat64(mediaType) - before; got != 1 {
		t.Fatalf("media_type rejections grew by %v", got)
	}

	unmatched := httpRequestsTotal.WithLabelValues("unmatched", http.MethodGet, "404")
	before = testutil.ToFloat64(unmatched)
	serve(h, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
	if got := testutil.ToFloat64(unmatched) - before; got != 1 {
		t.Fatalf("unmatched route not folded into one label: %v", got)
	}
}

func TestRejectReason(t *testing.T) {
	for status, want := range map[int]string{429: "queue_full", 413: "body_too_large", 415: "media_type", 503: "unavailable", 400: "", 200: ""} {
		if got := rejectReason(status); got != want {
			t.Fatalf("rejectReason(%d)=%q want %q", status, got, want)
		}
	}
}

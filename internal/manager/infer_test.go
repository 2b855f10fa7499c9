package manager

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"promptd/internal/engine"
	"promptd/internal/model/modeltest"
	"promptd/pkg/types"
)

func TestInferWritesNDJSON(t *testing.T) {
	b := &modeltest.Backend{Script: []string{"Hello", ",", " world"}}
	m, _ := newTestManager(t, b, nil)
	var buf bytes.Buffer
	flushes := 0
	if err := m.Infer(testCtx(t), types.InferRequest{Prompt: "hi"}, &buf, func() { flushes++ }); err != nil {
		t.Fatalf("infer: %v", err)
	}
	var tokens []types.TokenLine
	var done types.DoneLine
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		line := sc.Bytes()
		if bytes.Contains(line, []byte(`"done"`)) {
			if err := json.Unmarshal(line, &done); err != nil {
				t.Fatalf("done line: %v", err)
			}
			continue
		}
		var tl types.TokenLine
		if err := json.Unmarshal(line, &tl); err != nil {
			t.Fatalf("token line %q: %v", line, err)
		}
		tokens = append(tokens, tl)
	}
	want := []types.TokenLine{{Token: "Hello", Index: 0}, {Token: ",", Index: 1}, {Token: " world", Index: 2}}
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Fatalf("token lines mismatch (-want +got):\n%s", diff)
	}
	if !done.Done || done.Text != "Hello, world" || done.Tokens != 3 || done.StopReason != "end-of-sequence" || done.ID == "" {
		t.Fatalf("unexpected done line: %+v", done)
	}
	if flushes != 4 {
		t.Fatalf("expected a flush per line, got %d", flushes)
	}
}

func TestInferErrorBeforeTokensIsReturned(t *testing.T) {
	b := &modeltest.Backend{Script: []string{"a"}, FailAt: 1}
	m, _ := newTestManager(t, b, nil)
	var buf bytes.Buffer
	err := m.Infer(testCtx(t), types.InferRequest{Prompt: "hi"}, &buf, nil)
	if !engine.IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written, got %q", buf.String())
	}
}

func TestInferErrorAfterTokensGoesInDoneLine(t *testing.T) {
	b := &modeltest.Backend{Script: []string{"a", "b"}, FailAt: 2}
	m, _ := newTestManager(t, b, nil)
	var buf bytes.Buffer
	if err := m.Infer(testCtx(t), types.InferRequest{Prompt: "hi"}, &buf, nil); err != nil {
		t.Fatalf("late errors belong in the done line: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var done types.DoneLine
	if err := json.Unmarshal(lines[len(lines)-1], &done); err != nil {
		t.Fatal(err)
	}
	if done.StopReason != "error" || done.Error == "" || done.Text != "a" {
		t.Fatalf("unexpected done line: %+v", done)
	}
}

func TestInferWriterFailureCancels(t *testing.T) {
	b := &modeltest.Backend{Endless: true}
	m, _ := newTestManager(t, b, nil)
	w := &errWriter{}
	err := m.Infer(testCtx(t), types.InferRequest{Prompt: "hi", MaxTokens: intp(1000000)}, w, nil)
	if err == nil || err.Error() != "write fail" {
		t.Fatalf("expected writer error, got %v", err)
	}
	if st := m.Status(); st.Cancelled != 1 {
		t.Fatalf("expected the request to be cancelled: %+v", st)
	}
}

func TestInferRejected(t *testing.T) {
	m, _ := newTestManager(t, &modeltest.Backend{}, nil)
	err := m.Infer(testCtx(t), types.InferRequest{Prompt: "hi", Temperature: fp(-1)}, &bytes.Buffer{}, nil)
	var ipe *engine.InvalidParamsError
	if !errors.As(err, &ipe) || ipe.Field != "temperature" {
		t.Fatalf("expected temperature error, got %v", err)
	}
}

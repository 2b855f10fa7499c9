package httpapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"promptd/pkg/types"
)

// parsePromptForm reads an InferRequest from form or query values. Absent
// fields stay nil so service defaults apply.
func parsePromptForm(v url.Values) (types.InferRequest, error) {
	req := types.InferRequest{
		Model:  strings.TrimSpace(v.Get("model")),
		Prompt: v.Get("prompt"),
		Stop:   v["stop"],
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, fmt.Errorf("prompt is required")
	}
	if s := v.Get("max_tokens"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("max_tokens: %q is not an integer", s)
		}
		req.MaxTokens = &n
	}
	if s := v.Get("top_k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("top_k: %q is not an integer", s)
		}
		req.TopK = &n
	}
	if s := v.Get("seed"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return req, fmt.Errorf("seed: %q is not an integer", s)
		}
		req.Seed = n
	}
	floats := []struct {
		name string
		dst  **float64
	}{
		{"temperature", &req.Temperature},
		{"top_p", &req.TopP},
		{"repeat_penalty", &req.RepeatPenalty},
	}
	for _, f := range floats {
		s := v.Get(f.name)
		if s == "" {
			continue
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, fmt.Errorf("%s: %q is not a number", f.name, s)
		}
		*f.dst = &x
	}
	return req, nil
}

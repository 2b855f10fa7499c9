package llamaserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"promptd/internal/model"
)

// completionRequest is the payload for /v1/completions.
type completionRequest struct {
	Prompt        string  `json:"prompt"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	Temperature   float32 `json:"temperature"`
	TopP          float32 `json:"top_p,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
	RepeatPenalty float32 `json:"repeat_penalty,omitempty"`
	Stream        bool    `json:"stream"`
}

// streamChunk covers both completion (text) and chat (delta.content) chunks.
type streamChunk struct {
	Choices []struct {
		Text  string `json:"text"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	// Native llama.cpp stream lines.
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

// decodeContext maps one streamed completion onto decode steps: every
// non-empty fragment is one token and the end of the stream is EOS.
type decodeContext struct {
	b       *Backend
	baseURL string

	prompt string
	opts   model.DecodeOptions
	ready  bool

	body   io.ReadCloser
	r      *bufio.Reader
	cancel context.CancelFunc
	done   bool
}

func (c *decodeContext) Prompt(ctx context.Context, prompt string, opts model.DecodeOptions) error {
	c.closeStream()
	c.prompt, c.opts, c.ready, c.done = prompt, opts, true, false
	return nil
}

func (c *decodeContext) Next(ctx context.Context) (model.Token, error) {
	if !c.ready {
		return model.Token{}, errors.New("llama-server: no prompt")
	}
	if c.done {
		return model.Token{ID: -1, EOS: true}, nil
	}
	if c.body == nil {
		if err := c.open(ctx); err != nil {
			return model.Token{}, err
		}
	}
	for {
		line, err := c.r.ReadString('\n')
		if len(line) > 0 {
			frag, end, perr := parseLine(line)
			if perr != nil {
				c.b.cfg.Logger.Debug().Err(perr).Str("line", strings.TrimSpace(line)).Msg("unknown stream line")
			}
			if frag != "" {
				if end {
					c.finish()
				}
				return model.Token{ID: -1, Text: frag}, nil
			}
			if end {
				c.finish()
				return model.Token{ID: -1, EOS: true}, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.finish()
				return model.Token{ID: -1, EOS: true}, nil
			}
			if ctx.Err() != nil {
				return model.Token{}, ctx.Err()
			}
			return model.Token{}, fmt.Errorf("llama-server stream: %w", err)
		}
	}
}

func (c *decodeContext) open(ctx context.Context) error {
	p := c.opts.Sampling.WithDefaults()
	payload := completionRequest{
		Prompt:        c.prompt,
		MaxTokens:     c.opts.MaxTokens + 1,
		Temperature:   p.Temperature,
		TopP:          p.TopP,
		TopK:          p.TopK,
		Seed:          p.Seed,
		RepeatPenalty: p.RepeatPenalty,
		Stream:        true,
	}
	if p.Greedy() {
		payload.Temperature = 0
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(sctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.b.authorize(req)
	resp, err := c.b.client.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("llama-server request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return fmt.Errorf("llama-server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	c.body, c.r, c.cancel = resp.Body, bufio.NewReader(resp.Body), cancel
	return nil
}

// parseLine extracts the text fragment of one stream line and whether the
// stream is finished.
func parseLine(line string) (frag string, end bool, err error) {
	l := strings.TrimSpace(line)
	if l == "" || strings.HasPrefix(l, ":") {
		return "", false, nil
	}
	if strings.HasPrefix(strings.ToLower(l), "data:") {
		l = strings.TrimSpace(l[len("data:"):])
	}
	if l == "[DONE]" {
		return "", true, nil
	}
	var msg streamChunk
	if err := json.Unmarshal([]byte(l), &msg); err != nil {
		return "", false, err
	}
	if len(msg.Choices) > 0 {
		ch := msg.Choices[0]
		frag = ch.Text
		if frag == "" {
			frag = ch.Delta.Content
		}
		return frag, ch.FinishReason != "", nil
	}
	return msg.Content, msg.Stop, nil
}

func (c *decodeContext) finish() {
	c.closeStream()
	c.done = true
}

func (c *decodeContext) closeStream() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.body != nil {
		_ = c.body.Close()
		c.body, c.r = nil, nil
	}
}

func (c *decodeContext) Reset() error {
	c.closeStream()
	c.ready, c.done = false, false
	return nil
}

func (c *decodeContext) Close() error {
	c.closeStream()
	return nil
}

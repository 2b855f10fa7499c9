// Package engine runs the token generation loop: it feeds a prompt to a
// session's decode context, applies the stop policy (token limit,
// end-of-sequence, stop sequences, cancellation, deadline) and assembles the
// result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"promptd/internal/model"
)

// Engine is stateless apart from its logger; one Engine serves every
// session.
type Engine struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Engine { return &Engine{log: log} }

// Generation is a lazy, single-pass token stream. Nothing is decoded until
// Tokens is ranged over.
type Generation struct {
	e    *Engine
	ctx  context.Context
	sess *Session
	req  Request

	started atomic.Bool
	done    chan struct{}
	once    sync.Once
	result  Result
}

// Start validates req and binds it to sess. Validation failures return
// *InvalidParamsError before any decode work.
func (e *Engine) Start(ctx context.Context, sess *Session, req Request) (*Generation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New("engine: nil session")
	}
	if req.MaxTokens > 0 {
		if err := sess.check(); err != nil {
			return nil, err
		}
	}
	return &Generation{e: e, ctx: ctx, sess: sess, req: req.clone(), done: make(chan struct{})}, nil
}

// Tokens returns the event sequence. It can be ranged over once; later
// ranges yield nothing. Breaking out of the loop cancels the generation.
func (g *Generation) Tokens() iter.Seq[TokenEvent] {
	return func(yield func(TokenEvent) bool) {
		if !g.started.CompareAndSwap(false, true) {
			return
		}
		g.run(yield)
	}
}

// Result returns the outcome once the stream has ended, blocking until then.
// A generation that was never ranged over reports StopCancelled.
func (g *Generation) Result() Result {
	if g.started.CompareAndSwap(false, true) {
		g.finish(Result{Reason: StopCancelled, PromptLength: len(g.req.Prompt)})
	}
	<-g.done
	return g.result
}

func (g *Generation) finish(r Result) {
	g.once.Do(func() {
		g.result = r
		close(g.done)
	})
}

func (g *Generation) run(yield func(TokenEvent) bool) {
	start := time.Now()
	var (
		text  strings.Builder
		count int
		stops = stopMatcher{stops: g.req.Stop}
	)
	end := func(reason StopReason, err error, tail string) {
		text.WriteString(tail)
		r := Result{
			Text:         text.String(),
			Tokens:       count,
			Reason:       reason,
			Err:          err,
			PromptLength: len(g.req.Prompt),
			Duration:     time.Since(start),
		}
		yield(TokenEvent{Text: tail, Index: max(count-1, 0), Final: true})
		g.finish(r)
		ev := g.e.log.Debug()
		if err != nil {
			ev = g.e.log.Warn().Err(err)
		}
		ev.Str("stop_reason", string(reason)).Int("tokens", count).Dur("took", r.Duration).Msg("generation finished")
	}
	// ctxEnd maps the end of the generation context onto a stop reason.
	ctxEnd := func(err error) {
		tail := stops.flush()
		if errors.Is(err, context.DeadlineExceeded) {
			end(StopError, fmt.Errorf("%w after %d tokens", ErrTimeout, count), tail)
			return
		}
		end(StopCancelled, nil, tail)
	}

	if g.req.MaxTokens == 0 {
		end(StopMaxTokens, nil, "")
		return
	}
	if err := g.sess.acquire(); err != nil {
		end(StopError, err, "")
		return
	}
	defer g.sess.release()

	opts := model.DecodeOptions{Sampling: g.req.Sampling, MaxTokens: g.req.MaxTokens}
	if err := g.sess.dc.Prompt(g.ctx, g.req.Prompt, opts); err != nil {
		if g.ctx.Err() != nil {
			ctxEnd(g.ctx.Err())
			return
		}
		end(StopError, &DecodeError{Step: -1, Err: err}, "")
		return
	}

	for {
		if err := g.ctx.Err(); err != nil {
			ctxEnd(err)
			return
		}
		if count == g.req.MaxTokens {
			end(StopMaxTokens, nil, stops.flush())
			return
		}
		tok, err := g.sess.dc.Next(g.ctx)
		if err != nil {
			if g.ctx.Err() != nil {
				ctxEnd(g.ctx.Err())
				return
			}
			end(StopError, &DecodeError{Step: count, Err: err}, stops.flush())
			return
		}
		if tok.EOS {
			end(StopEndOfSequence, nil, stops.flush())
			return
		}
		count++
		release, matched := stops.push(tok.Text)
		if matched {
			end(StopEndOfSequence, nil, release)
			return
		}
		if release == "" {
			continue
		}
		text.WriteString(release)
		if !yield(TokenEvent{Text: release, Index: count - 1}) {
			text.WriteString(stops.flush())
			g.finish(Result{
				Text:         text.String(),
				Tokens:       count,
				Reason:       StopCancelled,
				PromptLength: len(g.req.Prompt),
				Duration:     time.Since(start),
			})
			return
		}
	}
}

// Generate runs req to completion, calling onToken for every event. The
// generation stops with StopCancelled when onToken returns false. The
// returned error is Result.Err.
func (e *Engine) Generate(ctx context.Context, sess *Session, req Request, onToken func(TokenEvent) bool) (Result, error) {
	g, err := e.Start(ctx, sess, req)
	if err != nil {
		return Result{Reason: StopError, Err: err}, err
	}
	for ev := range g.Tokens() {
		if onToken != nil && !onToken(ev) {
			break
		}
	}
	r := g.Result()
	return r, r.Err
}

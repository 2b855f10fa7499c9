package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// parseLevel maps a request log level name onto zerolog. Empty and "off"
// disable request logging; unknown names fall back to info.
func parseLevel(s string) zerolog.Level {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "", "off", "none":
		return zerolog.Disabled
	case "1":
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// requestLevel applies per-request overrides on top of def: ?log= wins over
// the X-Log-Level header.
func requestLevel(r *http.Request, def zerolog.Level) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return def
}

// requestLogger returns the server logger filtered at the request's level
// and tagged with its request id.
func (s *server) requestLogger(r *http.Request) zerolog.Logger {
	l := s.log.Level(requestLevel(r, s.defLevel))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		l = l.With().Str("request_id", rid).Logger()
	}
	return l
}

// logEnd records the outcome of a generation request. Failures log at
// error so an "error" request level still reports them; client
// disconnects only warn.
func logEnd(l zerolog.Logger, msg string, status int, start time.Time, err error) {
	ev := l.Info()
	switch {
	case errors.Is(err, context.Canceled):
		ev = l.Warn().Err(err)
	case err != nil:
		ev = l.Error().Err(err)
	}
	ev.Int("status", status).Dur("dur", time.Since(start)).Msg(msg)
}

// lineLogger logs complete NDJSON lines written through it at debug level.
type lineLogger struct {
	log zerolog.Logger
	buf []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := lw.buf[:idx]; len(line) > 0 {
			lw.log.Debug().RawJSON("line", line).Msg("infer>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

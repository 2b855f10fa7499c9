package llamaserver

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"promptd/internal/events"
)

type process struct {
	cmd     *exec.Cmd
	path    string
	baseURL string
	exited  chan struct{}
	once    sync.Once
}

// spawn starts llama-server for path and waits until it is healthy, exits,
// or the ready timeout passes.
func (b *Backend) spawn(ctx context.Context, path string) (*process, error) {
	host := b.cfg.Host
	var port int
	var err error
	if b.cfg.PortStart > 0 && b.cfg.PortEnd >= b.cfg.PortStart {
		port, err = pickPortInRange(host, b.cfg.PortStart, b.cfg.PortEnd)
	} else {
		port, err = pickFreePort(host)
	}
	if err != nil {
		return nil, err
	}
	baseURL := fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))

	args := []string{"-m", path, "--host", host, "--port", strconv.Itoa(port)}
	if b.cfg.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(b.cfg.ContextSize))
	}
	if b.cfg.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(b.cfg.GPULayers))
	}
	if b.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.cfg.Threads))
	}
	args = append(args, b.cfg.ExtraArgs...)

	cmd := exec.Command(b.cfg.Bin, args...)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start llama-server: %w", err)
	}
	pid := cmd.Process.Pid
	log := b.cfg.Logger.With().Str("model", path).Int("pid", pid).Logger()
	log.Info().Str("url", baseURL).Msg("llama-server started")
	b.publisher.Publish(events.Event{Name: "spawn_start", ModelID: path, Fields: map[string]any{"pid": pid, "host": host, "port": port}})

	p := &process{cmd: cmd, path: path, baseURL: baseURL, exited: make(chan struct{})}
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(p.exited)
	}()

	deadline := time.NewTimer(b.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if b.healthy(baseURL, time.Second) {
			log.Info().Msg("llama-server ready")
			b.publisher.Publish(events.Event{Name: "spawn_ready", ModelID: path, Fields: map[string]any{"pid": pid, "url": baseURL}})
			return p, nil
		}
		select {
		case werr := <-waitErr:
			log.Error().AnErr("exit", werr).Str("stderr", stderr.String()).Msg("llama-server exited before ready")
			b.publisher.Publish(events.Event{Name: "spawn_exit", ModelID: path, Fields: map[string]any{"pid": pid, "before_ready": true}})
			if werr == nil {
				return nil, fmt.Errorf("llama-server exited before ready: %s", baseURL)
			}
			return nil, fmt.Errorf("llama-server exited early: %v; stderr tail: %s", werr, stderr.String())
		case <-deadline.C:
			log.Error().Msg("llama-server not ready in time")
			b.publisher.Publish(events.Event{Name: "spawn_timeout", ModelID: path, Fields: map[string]any{"pid": pid}})
			_ = p.stop(b)
			return nil, fmt.Errorf("llama-server not ready in time: %s", baseURL)
		case <-ctx.Done():
			_ = p.stop(b)
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}

// stop sends SIGTERM, then kills the process if it has not exited after two
// seconds.
func (p *process) stop(b *Backend) error {
	p.once.Do(func() {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(2 * time.Second):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		b.cfg.Logger.Info().Str("model", p.path).Int("pid", p.cmd.Process.Pid).Msg("llama-server stopped")
		b.publisher.Publish(events.Event{Name: "spawn_stop", ModelID: p.path})
	})
	return nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

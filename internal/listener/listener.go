// Package listener accepts TCP connections on a single port and hands each
// one to the thread pool as a job that answers a minimal HTTP request.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/clock/system"
	"github.com/minhd-vu/webserver/internal/metrics"
	"github.com/minhd-vu/webserver/internal/threadpool"
)

// Executor runs jobs asynchronously; *threadpool.Pool satisfies it.
type Executor interface {
	ExecuteContext(ctx context.Context, job threadpool.Job) error
}

// Sleeper blocks the calling goroutine; the /sleep route uses it.
type Sleeper interface {
	Sleep(d time.Duration)
}

// Config controls request handling.
type Config struct {
	// SleepDelay is how long GET /sleep holds its worker.
	SleepDelay time.Duration
	// ReadTimeout bounds reading the request line.
	ReadTimeout time.Duration
	// SubmitTimeout bounds waiting for queue space; zero waits until Serve's
	// context ends.
	SubmitTimeout time.Duration
	// StaticDir overrides the embedded pages when set.
	StaticDir string
	// MaxConnections stops accepting after this many connections; zero means
	// no limit.
	MaxConnections int
	Logger         *zap.Logger
	Sleeper        Sleeper
}

const defaultReadTimeout = 5 * time.Second

// Listener owns the TCP socket and feeds accepted connections to an Executor.
type Listener struct {
	ln     net.Listener
	pool   Executor
	pages  pages
	cfg    Config
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
	closing   chan struct{}
}

// Listen binds addr and returns a Listener feeding pool.
func Listen(addr string, pool Executor, cfg Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	l, err := New(ln, pool, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an existing net.Listener.
func New(ln net.Listener, pool Executor, cfg Config) (*Listener, error) {
	if ln == nil {
		return nil, errors.New("listener is required")
	}
	if pool == nil {
		return nil, errors.New("executor is required")
	}
	p, err := loadPages(cfg.StaticDir)
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Listener{
		ln:      ln,
		pool:    pool,
		pages:   p,
		cfg:     cfg,
		logger:  logger,
		closing: make(chan struct{}),
	}, nil
}

// Addr is the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until ctx ends, Close is called, or
// MaxConnections is reached. It returns nil in all three cases.
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	l.logger.Info("listening", zap.Stringer("addr", l.ln.Addr()))
	accepted := 0
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.isClosing() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.logger.Warn("accept timed out; retrying", zap.Error(err))
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		accepted++
		l.dispatch(ctx, conn)
		if l.cfg.MaxConnections > 0 && accepted >= l.cfg.MaxConnections {
			l.logger.Info("connection limit reached", zap.Int("max_connections", l.cfg.MaxConnections))
			_ = l.Close()
			return nil
		}
	}
}

// Close stops accepting new connections. Jobs already handed to the pool keep
// running.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closing)
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.closeErr = fmt.Errorf("close listener: %w", err)
		}
	})
	return l.closeErr
}

func (l *Listener) isClosing() bool {
	select {
	case <-l.closing:
		return true
	default:
		return false
	}
}

// dispatch submits conn to the pool. A connection the pool refuses is closed
// without a response.
func (l *Listener) dispatch(ctx context.Context, conn net.Conn) {
	metrics.IncActiveConnections()
	l.logger.Debug("connection established", zap.Stringer("remote", conn.RemoteAddr()))

	submitCtx := ctx
	if l.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, l.cfg.SubmitTimeout)
		defer cancel()
	}
	err := l.pool.ExecuteContext(submitCtx, func() { l.handle(conn) })
	if err == nil {
		metrics.ObserveConnection(metrics.ConnAccepted)
		return
	}
	metrics.ObserveConnection(metrics.ConnRejected)
	metrics.DecActiveConnections()
	l.logger.Warn("pool refused connection; closing",
		zap.Stringer("remote", conn.RemoteAddr()),
		zap.Error(err),
	)
	_ = conn.Close()
}

// handle is the job body: read one request line, route it, respond, close.
func (l *Listener) handle(conn net.Conn) {
	defer metrics.DecActiveConnections()
	defer func() { _ = conn.Close() }()

	start := time.Now()
	_ = conn.SetReadDeadline(start.Add(l.cfg.ReadTimeout))
	line, err := readRequestLine(conn)
	if err != nil {
		metrics.ObserveConnection(metrics.ConnDropped)
		l.logger.Debug("dropping connection", zap.Stringer("remote", conn.RemoteAddr()), zap.Error(err))
		return
	}

	rt := match(line)
	if rt.sleep {
		l.cfg.Sleeper.Sleep(l.cfg.SleepDelay)
	}
	body := l.pages.notFound
	if rt.page == HelloPage {
		body = l.pages.hello
	}
	if err := writeResponse(conn, rt, body); err != nil {
		l.logger.Warn("write response failed", zap.String("route", rt.name), zap.Error(err))
		return
	}
	metrics.ObserveResponse(rt.name, rt.status, time.Since(start))
	l.logger.Debug("request served",
		zap.String("request_line", line),
		zap.Int("status", rt.status),
		zap.Duration("duration", time.Since(start)),
	)
}

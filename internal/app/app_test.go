package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minhd-vu/webserver/internal/config"
	"github.com/minhd-vu/webserver/internal/store"
)

type countingSleeper struct {
	calls atomic.Int32
}

func (s *countingSleeper) Sleep(time.Duration) {
	s.calls.Add(1)
}

func testConfig() config.Config {
	return config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Pool:     config.PoolConfig{Size: 2, QueueDepth: 8},
		Listener: config.ListenerConfig{SleepDelayMs: 1000, ReadTimeoutMs: 1000},
		Admin:    config.AdminConfig{Enabled: true, Port: 0},
		Progress: config.ProgressConfig{
			BufferSize:     64,
			MaxBatchEvents: 1,
			MaxBatchWaitMs: 10,
			LogEvents:      true,
		},
	}
}

func buildApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
	}, opts...)
	a, err := Build(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return a
}

func request(t *testing.T, addr net.Addr, line string) int {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = fmt.Fprintf(conn, "%s\r\n\r\n", line)
	require.NoError(t, err)
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func TestRunServesUntilCanceled(t *testing.T) {
	t.Parallel()

	sleeper := &countingSleeper{}
	a := buildApp(t, testConfig(), WithSleeper(sleeper))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Equal(t, http.StatusOK, request(t, a.ListenerAddr(), "GET / HTTP/1.1"))
	require.Equal(t, http.StatusOK, request(t, a.ListenerAddr(), "GET /sleep HTTP/1.1"))
	require.Equal(t, http.StatusNotFound, request(t, a.ListenerAddr(), "GET /nope HTTP/1.1"))
	require.Equal(t, int32(1), sleeper.calls.Load())

	adminURL := "http://" + a.AdminAddr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(adminURL + "/readyz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	// Every served connection ends up as a successful job run.
	require.Eventually(t, func() bool {
		resp, err := http.Get(adminURL + "/v1/jobs?status=success")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Jobs []store.JobRun `json:"jobs"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return len(body.Jobs) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	_, err := net.DialTimeout("tcp", a.ListenerAddr().String(), 100*time.Millisecond)
	require.Error(t, err)
}

func TestRunStopsAtConnectionLimit(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Admin.Enabled = false
	cfg.Listener.MaxConnections = 2
	a := buildApp(t, cfg)
	require.Nil(t, a.AdminAddr())

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	require.Equal(t, http.StatusOK, request(t, a.ListenerAddr(), "GET / HTTP/1.1"))
	require.Equal(t, http.StatusOK, request(t, a.ListenerAddr(), "GET / HTTP/1.1"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the connection limit")
	}
	require.Equal(t, "stopped", a.pool.State().String())
}

func TestBuildRejectsInvalidPoolSize(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Pool.Size = 0
	_, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()), WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "thread pool size must be > 0")
}

func TestBuildFailsWhenPortIsTaken(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.Server.Port = taken.Addr().(*net.TCPAddr).Port
	_, err = Build(context.Background(), cfg, WithLogger(zap.NewNop()), WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "listener init failed")
}

func TestCloseWithoutRun(t *testing.T) {
	t.Parallel()

	a := buildApp(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
	require.Equal(t, "stopped", a.pool.State().String())
}

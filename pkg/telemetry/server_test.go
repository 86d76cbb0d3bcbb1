package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func getStatus(url string) (int, error) {
	resp, err := http.Get(url) //nolint:noctx
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func TestStartMetricsServer_ReadinessFollowsCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ready atomic.Bool
	check := func(context.Context) error {
		if !ready.Load() {
			return errors.New("store unreachable")
		}
		return nil
	}
	addr := freeAddr(t)
	StartMetricsServer(ctx, addr, check, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Eventually(t, func() bool {
		code, err := getStatus("http://" + addr + "/healthz")
		return err == nil && code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	code, err := getStatus("http://" + addr + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	ready.Store(true)
	code, err = getStatus("http://" + addr + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	code, err = getStatus("http://" + addr + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

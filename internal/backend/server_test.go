package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForServer_BecomesReady(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := waitForServer(context.Background(), srv.URL, 5*time.Second, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, hits.Load(), int32(3))
}

func TestWaitForServer_ProcessExited(t *testing.T) {
	exited := make(chan struct{})
	close(exited)

	err := waitForServer(context.Background(), "http://127.0.0.1:1/health", 5*time.Second, exited)
	assert.ErrorContains(t, err, "process exited")
}

func TestWaitForServer_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := waitForServer(context.Background(), srv.URL, 300*time.Millisecond, nil)
	assert.ErrorContains(t, err, "failed to respond")
}

func TestServerManager_StartServerMissingBinary(t *testing.T) {
	sm := NewServerManager()
	err := sm.StartServer(context.Background(), ServerConfig{
		Name:    "whisper.cpp",
		BinPath: filepath.Join(t.TempDir(), "whisper-server"),
		Port:    18082,
	})
	assert.ErrorContains(t, err, "failed to start whisper.cpp server")

	assert.NoError(t, sm.StopServer("whisper.cpp", 18082))
	sm.StopAll()
}

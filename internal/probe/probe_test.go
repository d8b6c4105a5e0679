package probe

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeTCP_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res := ProbeTCP(ctx, port)
	assert.True(t, res.OK)
	assert.NoError(t, res.Err)
}

func TestProbeTCP_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res := ProbeTCP(ctx, 1)
	assert.False(t, res.OK)
	assert.Error(t, res.Err)
}

func TestProbeHTTP_FindsPageTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]devtoolsTarget{
			{ID: "1", Type: "page", WebSocketDebuggerURL: "ws://127.0.0.1/devtools/page/1"},
		})
	}))
	defer srv.Close()

	port, err := strconv.Atoi(strings.Split(srv.Listener.Addr().String(), ":")[1])
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res := ProbeHTTP(ctx, port)
	assert.True(t, res.OK)
	assert.Equal(t, "ws://127.0.0.1/devtools/page/1", res.Detail)
}

func TestProbeHTTP_NoPageTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]devtoolsTarget{
			{ID: "1", Type: "background_page"},
		})
	}))
	defer srv.Close()

	port, err := strconv.Atoi(strings.Split(srv.Listener.Addr().String(), ":")[1])
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res := ProbeHTTP(ctx, port)
	assert.False(t, res.OK)
}

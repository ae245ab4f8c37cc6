package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisChecker(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectPing().SetVal("PONG")

		checker := RedisChecker(client)
		assert.Equal(t, "redis", checker.Name)
		assert.NoError(t, checker.Check(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectPing().SetErr(errors.New("connection refused"))

		checker := RedisChecker(client)
		assert.Error(t, checker.Check(context.Background()))
	})
}

func TestHTTPEndpointChecker(t *testing.T) {
	t.Run("healthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		checker := HTTPEndpointChecker("payments", server.URL)
		assert.Equal(t, "payments", checker.Name)
		assert.NoError(t, checker.Check(context.Background()))
	})

	t.Run("unhealthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		checker := HTTPEndpointChecker("payments", server.URL)
		assert.Error(t, checker.Check(context.Background()))
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		checker := HTTPEndpointChecker("payments", "http://127.0.0.1:1")
		assert.Error(t, checker.Check(context.Background()))
	})
}

func TestRun(t *testing.T) {
	healthy := Checker{Name: "ok", Check: func(ctx context.Context) error { return nil }}
	broken := Checker{Name: "broken", Check: func(ctx context.Context) error { return errors.New("down") }}

	failures := Run(context.Background(), healthy, broken)
	require.Len(t, failures, 1)
	assert.Contains(t, failures, "broken")
}

package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const checkTimeout = 2 * time.Second

// Checker is a named dependency probe.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// DatabaseChecker probes the PostgreSQL pool.
func DatabaseChecker(pool *pgxpool.Pool) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			return pool.Ping(ctx)
		},
	}
}

// RedisChecker probes the Redis connection.
func RedisChecker(client redis.UniversalClient) Checker {
	return Checker{
		Name: "redis",
		Check: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			return client.Ping(ctx).Err()
		},
	}
}

// HTTPEndpointChecker probes an external dependency's health endpoint.
func HTTPEndpointChecker(name, url string) Checker {
	httpClient := &http.Client{Timeout: checkTimeout}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("endpoint %s returned status %d", url, resp.StatusCode)
			}
			return nil
		},
	}
}

// Run executes every checker and returns the failures by name.
func Run(ctx context.Context, checkers ...Checker) map[string]error {
	failures := make(map[string]error)
	for _, c := range checkers {
		if err := c.Check(ctx); err != nil {
			failures[c.Name] = err
		}
	}
	return failures
}

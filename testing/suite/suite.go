// Package suite gives tests an empty redis holding the sandbox ledger. A
// disposable container is started unless SANDBOX_TEST_REDIS names a server
// the tests may flush.
package suite

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	expireDuration  = 120
	maxWaitDuration = 120 * time.Second
	scanBatch       = 100
)

const redisPort = "6379/tcp"

// Config is read from the environment.
type Config struct {
	Addr    string `env:"SANDBOX_TEST_REDIS"`
	Image   string `env:"SANDBOX_TEST_REDIS_IMAGE" env-default:"redis"`
	Tag     string `env:"SANDBOX_TEST_REDIS_TAG" env-default:"7-alpine"`
	Verbose bool   `env:"SANDBOX_TEST_VERBOSE" env-default:"false"`
}

type Suite struct {
	*testing.T
	Logger *slog.Logger

	Storage *redis.Client
}

// New skips the test in short mode or when no redis can be had.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	if testing.Short() {
		t.Skip("ledger store skipped in short mode")
	}

	var conf Config
	if err := cleanenv.ReadEnv(&conf); err != nil {
		t.Fatalf("could not read suite config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), maxWaitDuration)
	t.Cleanup(cancel)

	var client *redis.Client
	if conf.Addr != "" {
		client = redis.NewClient(&redis.Options{Addr: conf.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			t.Fatalf("could not connect to redis at %s: %v", conf.Addr, err)
		}
	} else {
		client = startContainer(ctx, t, conf)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("could not flush database: %v", err)
	}

	return ctx, &Suite{
		T:       t,
		Logger:  newLogger(conf.Verbose),
		Storage: client,
	}
}

// Keys lists the stored keys matching pattern in order, e.g. "account:*"
// for every ledger record.
func (that *Suite) Keys(ctx context.Context, pattern string) []string {
	that.Helper()

	var keys []string
	iter := that.Storage.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		that.Fatalf("could not scan %q: %v", pattern, err)
	}

	sort.Strings(keys)

	return keys
}

func startContainer(ctx context.Context, t *testing.T, conf Config) *redis.Client {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	if err = pool.Client.Ping(); err != nil {
		t.Skipf("docker is not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: conf.Image,
		Tag:        conf.Tag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("could not start %s:%s: %v", conf.Image, conf.Tag, err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Errorf("could not purge resource: %v", err)
		}
	})

	// hard kill in case cleanup never runs
	_ = resource.Expire(expireDuration)

	pool.MaxWait = maxWaitDuration
	client := redis.NewClient(&redis.Options{Addr: resource.GetHostPort(redisPort)})

	if err = pool.Retry(func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		t.Fatalf("could not connect to redis: %v", err)
	}

	return client
}

func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Brian-Chae/mind-breeze-ai-report-sub010/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

// setEnv sets variables for one Convey pass; the returned func unsets them.
func setEnv(vars map[string]string) func() {
	for k, v := range vars {
		_ = os.Setenv(k, v)
	}
	return func() {
		for k := range vars {
			_ = os.Unsetenv(k)
		}
	}
}

func TestConfigLoader(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a config loader", t, func() {
		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.LedgerDriver, convey.ShouldEqual, "memory")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			defer setEnv(map[string]string{
				"MINDBREEZE_ADDR":                 ":8080",
				"MINDBREEZE_QUEUE_SIZE":           "64",
				"MINDBREEZE_QUALITY_PROFILE":      "lenient",
				"MINDBREEZE_AI_RATE_LIMIT_RPS":    "0.5",
				"MINDBREEZE_CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example",
			})()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.QualityProfile, convey.ShouldEqual, "lenient")
				convey.So(cfg.AIRateLimitRPS, convey.ShouldEqual, 0.5)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			path := writeConfigFile(t, `
addr: ":9090"
worker_count: 3
store_driver: sqlite
sqlite_path: /tmp/reports.db
ledger_driver: redis
redis_addr: cache:6379
cors_allowed_origins:
  - https://app.example
`)
			defer setEnv(map[string]string{
				"MINDBREEZE_CONFIG":       path,
				"MINDBREEZE_WORKER_COUNT": "7",
			})()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the environment wins over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 7)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/reports.db")
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble, []string{"https://app.example"})
			})
		})

		convey.Convey("When loading an explicit file", func() {
			explicit := writeConfigFile(t, "dedupe_size: 11\n")
			ignored := writeConfigFile(t, "dedupe_size: 22\n")
			defer setEnv(map[string]string{
				"MINDBREEZE_CONFIG": ignored,
				"MINDBREEZE_ADDR":   ":7070",
			})()

			cfg, err := config.LoadFile(ctx, explicit)

			convey.Convey("Then it replaces MINDBREEZE_CONFIG and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 11)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
			})

			convey.Convey("Then an empty path skips the file layer", func() {
				defaults, err := config.LoadFile(ctx, "")
				convey.So(err, convey.ShouldBeNil)
				convey.So(defaults.DedupeSize, convey.ShouldEqual, config.New().DedupeSize)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			defer setEnv(map[string]string{"MINDBREEZE_CONFIG": "/non/existent/file.yaml"})()
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a numeric variable is not a number", func() {
			defer setEnv(map[string]string{"MINDBREEZE_QUEUE_SIZE": "plenty"})()
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the loaded values are invalid", func() {
			defer setEnv(map[string]string{"MINDBREEZE_LEDGER_DRIVER": "postgres"})()
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/squadwatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("SQUADWATCH_ENTITY", "ABC")
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Entity, convey.ShouldEqual, "ABC")
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.PollIntervalSec, convey.ShouldEqual, 60)
				convey.So(cfg.ListingPageCap, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SQUADWATCH_ADDR", ":8080")
			_ = os.Setenv("SQUADWATCH_POLL_INTERVAL_SEC", "30")
			_ = os.Setenv("SQUADWATCH_POLL_JITTER", "0.2")
			_ = os.Setenv("SQUADWATCH_GRACE_PERIOD_SEC", "600")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.PollIntervalSec, convey.ShouldEqual, 30)
				convey.So(cfg.PollJitter, convey.ShouldEqual, 0.2)
				convey.So(cfg.GracePeriodSec, convey.ShouldEqual, 600)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
data_dir: "/var/lib/squadwatch"
listing_page_cap: 10
publisher: webhook
webhook_url: "http://hooks.local/summary"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SQUADWATCH_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file and keep defaults elsewhere", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DataDir, convey.ShouldEqual, "/var/lib/squadwatch")
				convey.So(cfg.ListingPageCap, convey.ShouldEqual, 10)
				convey.So(cfg.Publisher, convey.ShouldEqual, "webhook")
				convey.So(cfg.WindowHours, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When both file and environment variables are set", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
listing_page_cap: 10
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SQUADWATCH_CONFIG", tmpFile)
			_ = os.Setenv("SQUADWATCH_ADDR", ":7070")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.ListingPageCap, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When the YAML file is invalid", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SQUADWATCH_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the file does not exist", func() {
			_ = os.Setenv("SQUADWATCH_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("SQUADWATCH_POLL_INTERVAL_SEC", "soon")

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When the entity is cleared", func() {
			_ = os.Setenv("SQUADWATCH_ENTITY", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "entity must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, envVar := range []string{
		"SQUADWATCH_CONFIG",
		"SQUADWATCH_ENTITY",
		"SQUADWATCH_ADDR",
		"SQUADWATCH_POLL_INTERVAL_SEC",
		"SQUADWATCH_POLL_JITTER",
		"SQUADWATCH_GRACE_PERIOD_SEC",
	} {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "squadwatch-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

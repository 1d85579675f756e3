package main

import (
	"log/slog"

	"github.com/wtsi-npg/workbot/internal/config"
)

const (
	defaultArchiveRoot = "/archive"
	defaultStagingRoot = "/tmp/workbot"
)

// Config holds the environment-sourced settings specific to the workbot CLI:
// where jobs stage and archive data, which baton-do executable drives the
// archive, and which zone broker discovery queries search.
type Config struct {
	ArchiveRoot     string
	StagingRoot     string
	BatonExecutable string
	ArchiveZone     string
	DefaultWorkKind string
	LogLevel        slog.Level
}

// LoadConfig reads the workbot CLI's own environment variables. Job store and
// warehouse connection settings are loaded separately by their own packages'
// LoadConfig functions.
func LoadConfig() *Config {
	return &Config{
		ArchiveRoot:     config.GetEnvStr("WORKBOT_ARCHIVE_ROOT", defaultArchiveRoot),
		StagingRoot:     config.GetEnvStr("WORKBOT_STAGING_ROOT", defaultStagingRoot),
		BatonExecutable: config.GetEnvStr("WORKBOT_BATON_EXECUTABLE", "baton-do"),
		ArchiveZone:     config.GetEnvStr("WORKBOT_ARCHIVE_ZONE", ""),
		DefaultWorkKind: config.GetEnvStr("WORKBOT_DEFAULT_WORK_KIND", "ONTRunData"),
		LogLevel:        config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Package worker provides the WorkerKind registry and the per-work-kind
// pipeline.Worker implementations: ONTRunDataWorker and ONTRunMetadataWorker.
package worker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wtsi-npg/workbot/internal/jobstate"
)

// Sentinel errors for registry loading and lookup.
var (
	// ErrRegistryNotFound indicates no registry file was found on the search path.
	ErrRegistryNotFound = errors.New("no work-kind registry file found")

	// ErrUnknownWorkerClass indicates a registry entry named a class this
	// binary does not implement.
	ErrUnknownWorkerClass = errors.New("unknown worker class")
)

// KindConfig is one entry in the work-kind registry: which worker
// implementation class drives it, and the external analysis command it
// invokes (empty for kinds, like ONTRunMetadataUpdate, that move no data).
type KindConfig struct {
	Class   string `yaml:"class"`
	Command string `yaml:"command"`
}

// Registry maps a work kind to its configuration, read from the work-kind
// registry file.
type Registry map[jobstate.WorkKind]KindConfig

// LoadRegistry decodes a YAML work-kind registry file.
func LoadRegistry(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file %s: %w", path, err)
	}

	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}

	return registry, nil
}

// SearchPaths returns the registry file search order: the WORKBOT_CONFIG
// override, then ./workbot.yml, then $XDG_DATA_HOME/workbot/workbot.yml
// (defaulting to ~/.local/share), then ~/.workbot/workbot.yml.
func SearchPaths() []string {
	const (
		configFile = "workbot.yml"
		configDir  = "workbot"
	)

	var paths []string

	if override := os.Getenv("WORKBOT_CONFIG"); override != "" {
		paths = append(paths, override)
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, configFile))
	}

	home, _ := os.UserHomeDir()

	xdgDataHome := os.Getenv("XDG_DATA_HOME")
	if xdgDataHome == "" && home != "" {
		xdgDataHome = filepath.Join(home, ".local", "share")
	}

	if xdgDataHome != "" {
		paths = append(paths, filepath.Join(xdgDataHome, configDir, configFile))
	}

	if home != "" {
		paths = append(paths, filepath.Join(home, "."+configDir, configFile))
	}

	return paths
}

// FindRegistry locates and loads the first existing file on SearchPaths.
func FindRegistry() (Registry, error) {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadRegistry(path)
		}
	}

	return nil, fmt.Errorf("%w: searched %v", ErrRegistryNotFound, SearchPaths())
}

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/config"
)

// Defaults are the locations docsync uses before a config file exists.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string

	// RepositoryDir is the git checkout of the documentation.
	RepositoryDir string
	// DocsSubdir is the directory inside RepositoryDir holding the locales.
	// Empty means RepositoryDir itself.
	DocsSubdir string
}

// GetDefaults resolves Defaults from the environment:
//   - DOCSYNC_CONFIG_PATH: config file (default ~/.config/docsync.toml)
//   - DOCSYNC_HOME: data directory (default ~/.local/share/docsync)
//   - DOCSYNC_REPOSITORY: documentation checkout (default <home>/repository)
//   - DOCSYNC_DOCS_SUBDIR: locale root inside the checkout (default: the checkout itself)
func GetDefaults() (*Defaults, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	d := &Defaults{
		ConfigPath: envOr("DOCSYNC_CONFIG_PATH", filepath.Join(homeDir, ".config", "docsync.toml")),
		BaseDir:    envOr("DOCSYNC_HOME", filepath.Join(homeDir, ".local", "share", "docsync")),
		DocsSubdir: os.Getenv("DOCSYNC_DOCS_SUBDIR"),
	}
	d.LogDir = filepath.Join(d.BaseDir, "log")
	d.RepositoryDir = envOr("DOCSYNC_REPOSITORY", filepath.Join(d.BaseDir, "repository"))
	return d, nil
}

// NewConfig builds the config written by "config init". Empty arguments keep
// the defaults.
func (d *Defaults) NewConfig(repositoryDir, docsSubdir string) *config.Config {
	if repositoryDir == "" {
		repositoryDir = d.RepositoryDir
	}
	if docsSubdir == "" {
		docsSubdir = d.DocsSubdir
	}
	cfg := config.NewConfig(d.BaseDir, repositoryDir)
	cfg.LogDir = d.LogDir
	cfg.Source.DocsSubdir = docsSubdir
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

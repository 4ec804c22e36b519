package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultQueueName        = "content_sync"
	DefaultBatchSize        = 50
	DefaultTimeLimitSeconds = 15
	DefaultRedirectFile     = "redirects.csv"
	DefaultListenAddr       = "127.0.0.1:8080"
)

// Config represents the main configuration for docsync.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Source   SourceConfig   `toml:"source"`
	Queue    QueueConfig    `toml:"queue"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
	Media    MediaConfig    `toml:"media"`
	Cache    CacheConfig    `toml:"cache"`
	Server   ServerConfig   `toml:"server"`
}

// SourceConfig describes where the documentation repository lives and which files count.
type SourceConfig struct {
	RepositoryDir     string   `toml:"repository_dir"`
	DocsSubdir        string   `toml:"docs_subdir,omitempty"` // relative to repository_dir, e.g. "docs"
	Locales           []string `toml:"locales,omitempty"`     // empty means every first-level directory
	ContentExtensions []string `toml:"content_extensions,omitempty"`
	RedirectFile      string   `toml:"redirect_file,omitempty"`
	Ignore            []string `toml:"ignore,omitempty"`
	GitRemote         string   `toml:"git_remote,omitempty"`
	GitBranch         string   `toml:"git_branch,omitempty"`
}

// DocsDir returns the directory the finder scans.
func (s SourceConfig) DocsDir() string {
	if s.DocsSubdir == "" {
		return s.RepositoryDir
	}
	return filepath.Join(s.RepositoryDir, s.DocsSubdir)
}

// QueueConfig holds settings for the sync queue.
type QueueConfig struct {
	Name               string `toml:"name"`
	BatchSize          int    `toml:"batch_size"`
	TimeLimitSeconds   int    `toml:"time_limit_seconds"`
	RunIntervalSeconds int    `toml:"run_interval_seconds,omitempty"` // 0 disables periodic runs in serve
}

// SyncConfig holds reconciliation settings.
type SyncConfig struct {
	CleanupPolicy string `toml:"cleanup_policy"` // "delete" (default) or "unpublish"
}

// DatabaseConfig represents configuration for the content database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// MediaConfig represents configuration for mirrored image storage.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MediaConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3UsePathStyle bool   `toml:"s3_use_path_style,omitempty"`
	S3AccessKey    string `toml:"s3_access_key,omitempty"`
	S3SecretKey    string `toml:"s3_secret_key,omitempty"`

	PublicBaseURL       string `toml:"public_base_url,omitempty"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds,omitempty"`
	FetchCacheTTLSecs   int    `toml:"fetch_cache_ttl_seconds,omitempty"`
}

// CacheConfig selects how cache tags are invalidated.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type CacheConfig struct {
	Type         string `toml:"type"` // "none", "memory" or "redis"
	RedisAddr    string `toml:"redis_addr,omitempty"`
	RedisDB      int    `toml:"redis_db,omitempty"`
	RedisChannel string `toml:"redis_channel,omitempty"`
}

// ServerConfig holds settings for the webhook and admin HTTP server.
type ServerConfig struct {
	Listen           string `toml:"listen"`
	WebhookAccessKey string `toml:"webhook_access_key,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir, repositoryDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Source: SourceConfig{
			RepositoryDir:     repositoryDir,
			ContentExtensions: []string{".md"},
			RedirectFile:      DefaultRedirectFile,
		},
		Queue: QueueConfig{
			Name:             DefaultQueueName,
			BatchSize:        DefaultBatchSize,
			TimeLimitSeconds: DefaultTimeLimitSeconds,
		},
		Sync:     SyncConfig{CleanupPolicy: "delete"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Media: MediaConfig{
			Type:                "filesystem",
			FSRoot:              filepath.Join(baseDir, "media"),
			PublicBaseURL:       "/media",
			FetchTimeoutSeconds: 10,
			FetchCacheTTLSecs:   3600,
		},
		Cache:  CacheConfig{Type: "none"},
		Server: ServerConfig{Listen: DefaultListenAddr},
	}
}

// ApplyDefaults fills zero values that older config files may leave empty.
func (c *Config) ApplyDefaults() {
	if c.Queue.Name == "" {
		c.Queue.Name = DefaultQueueName
	}
	if c.Queue.BatchSize <= 0 {
		c.Queue.BatchSize = DefaultBatchSize
	}
	if c.Queue.TimeLimitSeconds <= 0 {
		c.Queue.TimeLimitSeconds = DefaultTimeLimitSeconds
	}
	if len(c.Source.ContentExtensions) == 0 {
		c.Source.ContentExtensions = []string{".md"}
	}
	if c.Source.RedirectFile == "" {
		c.Source.RedirectFile = DefaultRedirectFile
	}
	if c.Sync.CleanupPolicy == "" {
		c.Sync.CleanupPolicy = "delete"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "none"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListenAddr
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	switch c.Sync.CleanupPolicy {
	case "delete", "unpublish":
	default:
		return fmt.Errorf("invalid sync.cleanup_policy %q: want delete or unpublish", c.Sync.CleanupPolicy)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies defaults.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

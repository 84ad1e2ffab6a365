package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/snapcomp/internal/server"
	apperr "github.com/matzehuels/snapcomp/pkg/errors"
	"github.com/matzehuels/snapcomp/pkg/pipeline"
)

// Config is the optional config file. Command-line flags override it.
//
//	[output]
//	format = "jpeg"
//	quality = 85
//
//	[capture]
//	concurrency = 8
//	timeout = "30s"
//	surface_dir = "./snapshots"
//
//	[cache]
//	backend = "redis"
//	redis_addr = "localhost:6379"
type Config struct {
	Output  OutputConfig  `toml:"output"`
	Capture CaptureConfig `toml:"capture"`
	Mongo   MongoConfig   `toml:"mongo"`
	Cache   CacheConfig   `toml:"cache"`
	Server  ServerConfig  `toml:"server"`
}

// OutputConfig holds encoder defaults.
type OutputConfig struct {
	Format  string `toml:"format"`
	Quality int    `toml:"quality"`
}

// CaptureConfig selects and configures snapshot providers. Every
// configured provider is tried in the order dir, url, mongo, browser.
type CaptureConfig struct {
	Concurrency int               `toml:"concurrency"`
	Timeout     pipeline.Duration `toml:"timeout"`

	SurfaceDir string `toml:"surface_dir"`
	SurfaceURL string `toml:"surface_url"`

	BrowserPage    string            `toml:"browser_page"`
	BrowserElement string            `toml:"browser_element"`
	BrowserRemote  string            `toml:"browser_remote"`
	BrowserSettle  pipeline.Duration `toml:"browser_settle"`
	ChromePath     string            `toml:"chrome_path"`

	Mongo bool `toml:"mongo"`
}

// MongoConfig locates the surface collection.
type MongoConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
}

// CacheConfig selects the artifact cache backend.
type CacheConfig struct {
	Backend       string `toml:"backend"` // file (default), redis, none
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// ServerConfig configures "snapcomp serve".
type ServerConfig struct {
	Addr         string            `toml:"addr"`
	AllowFiles   bool              `toml:"allow_files"`
	MaxBodyBytes int64             `toml:"max_body_bytes"`
	Timeout      pipeline.Duration `toml:"timeout"`
}

// Cache backends.
const (
	cacheFile  = "file"
	cacheRedis = "redis"
	cacheNone  = "none"
)

// defaultConfig returns the built-in defaults.
func defaultConfig() Config {
	return Config{
		Output: OutputConfig{
			Format:  string(pipeline.DefaultFormat),
			Quality: pipeline.DefaultQuality,
		},
		Capture: CaptureConfig{
			Concurrency: pipeline.DefaultConcurrency,
			Timeout:     pipeline.Duration(pipeline.DefaultCaptureTimeout),
		},
		Cache:  CacheConfig{Backend: cacheFile},
		Server: ServerConfig{Addr: server.DefaultAddr, Timeout: pipeline.Duration(server.DefaultRequestTimeout)},
	}
}

// loadConfig reads path over the defaults. An empty path reads the default
// location and tolerates its absence; an explicit path must exist.
func loadConfig(path string) (Config, string, error) {
	cfg := defaultConfig()
	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err != nil {
			return cfg, "", nil
		}
		path = filepath.Join(dir, "config.toml")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return cfg, "", nil
	}
	if err != nil {
		return cfg, "", apperr.Wrap(apperr.ErrCodeInvalidInput, err, "read config %s", path)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, "", apperr.Wrap(apperr.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, "", apperr.New(apperr.ErrCodeInvalidInput, "config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, path, nil
}

// apply fills unset request options from the config.
func (c Config) apply(opts *pipeline.Options) {
	if opts.Format == "" {
		opts.Format = c.Output.Format
	}
	if opts.Quality == 0 {
		opts.Quality = c.Output.Quality
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = c.Capture.Concurrency
	}
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = c.Capture.Timeout
	}
}

// configDir returns the config directory using XDG standard (~/.config/snapcomp/).
func configDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

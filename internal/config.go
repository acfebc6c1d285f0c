package internal

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/aukc1970/formwork/internal/cache"
	"github.com/aukc1970/formwork/internal/content"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cache drivers.
const (
	CacheDriverMemory = "memory"
	CacheDriverSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Content   ContentConfig     `yaml:"content"`
	Templates TemplatesConfig   `yaml:"templates"`
	Cache     CacheConfig       `yaml:"cache"`
	Admin     AdminConfig       `yaml:"admin"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	if err := c.Templates.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return c.Admin.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ContentConfig describes the content directory and page conventions.
type ContentConfig struct {
	Path              string   `yaml:"path"`
	Extension         string   `yaml:"extension"`
	Index             string   `yaml:"index"`
	Error             string   `yaml:"error"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	// SiteFile holds site data (title, aliases). It is optional.
	SiteFile string `yaml:"site_file"`
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Extension, validation.Required),
		validation.Field(&c.Index, validation.Required),
		validation.Field(&c.Error, validation.Required),
	)
}

// Options converts the section to content tree options.
func (c *ContentConfig) Options() content.Options {
	exts := make([]string, 0, len(c.AllowedExtensions))
	for _, e := range c.AllowedExtensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return content.Options{
		Extension:         c.Extension,
		IndexRoute:        c.Index,
		ErrorRoute:        c.Error,
		AllowedExtensions: exts,
		Now:               time.Now,
	}
}

// TemplatesConfig locates page templates.
type TemplatesConfig struct {
	Path      string `yaml:"path"`
	Extension string `yaml:"extension"`
	PerPage   int    `yaml:"per_page"`
}

// Validate validates the templates configuration.
func (c *TemplatesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extension, validation.Required),
		validation.Field(&c.PerPage, validation.Min(0)),
	)
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Driver        string        `yaml:"driver"`
	Path          string        `yaml:"path"`
	TTL           time.Duration `yaml:"ttl"`
	CheckInterval time.Duration `yaml:"check_interval"`
	Size          int           `yaml:"size"`
	Watch         bool          `yaml:"watch"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(CacheDriverMemory, CacheDriverSQLite)),
		validation.Field(&c.Path, validation.When(c.Driver == CacheDriverSQLite, validation.Required)),
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
		validation.Field(&c.CheckInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Size, validation.Min(0)),
	)
}

// Open creates the configured store wrapped in a SiteCache. It returns nil
// when caching is disabled.
func (c *CacheConfig) Open(tree cache.Tree, logger *slog.Logger) (*cache.SiteCache, error) {
	if !c.Enabled {
		return nil, nil
	}
	var (
		store cache.Store
		err   error
	)
	switch c.Driver {
	case CacheDriverSQLite:
		store, err = cache.OpenSQLite(c.Path)
	default:
		store, err = cache.NewMemoryStore(c.Size)
	}
	if err != nil {
		return nil, err
	}
	sc, err := cache.NewSiteCache(store, tree, cache.Options{
		TTL:           c.TTL,
		CheckInterval: c.CheckInterval,
		Logger:        logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return sc, nil
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	Enabled bool       `yaml:"enabled"`
	Root    string     `yaml:"root"`
	Auth    AuthConfig `yaml:"auth"`
}

// Validate validates the admin configuration.
func (c *AdminConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.When(c.Enabled, validation.Required)),
	); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// Mount returns the admin mount point, e.g. "/admin".
func (c *AdminConfig) Mount() string {
	return "/" + strings.Trim(c.Root, "/")
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Content: ContentConfig{
			Path:              "./content",
			Extension:         ".md",
			Index:             "index",
			Error:             "404",
			AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".gif", ".svg", ".pdf"},
			SiteFile:          "./site.yml",
		},
		Templates: TemplatesConfig{
			Path:      "./templates",
			Extension: ".html",
			PerPage:   10,
		},
		Cache: CacheConfig{
			Enabled:       false,
			Driver:        CacheDriverMemory,
			Path:          "./formwork-cache.db",
			TTL:           cache.DefaultTTL,
			CheckInterval: 5 * time.Second,
			Size:          cache.DefaultSize,
			Watch:         true,
		},
		Admin: AdminConfig{
			Enabled: true,
			Root:    "admin",
			Auth: AuthConfig{
				Mode: AuthModeDisabled,
			},
		},
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"jawafdehi/internal/archive"
	"jawafdehi/internal/bytesize"
	"jawafdehi/internal/jds"
	"jawafdehi/internal/nes"
	"jawafdehi/internal/prerender"
	"jawafdehi/internal/query"
	"jawafdehi/internal/upstream"
)

// Error reports a config file that could not be read, parsed or validated.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	StaleTime string `yaml:"staleTime"`

	Upstream  Upstream  `yaml:"upstream"`
	Prerender Prerender `yaml:"prerender"`
	Archive   Archive   `yaml:"archive"`
	Serve     Serve     `yaml:"serve"`
	Log       Log       `yaml:"log"`

	// compiled
	StaleDur time.Duration `yaml:"-"`
}

type Upstream struct {
	JDS         string `yaml:"jds"`
	NES         string `yaml:"nes"`
	Timeout     string `yaml:"timeout"`
	MaxResponse string `yaml:"maxResponse"`

	TimeoutDur       time.Duration `yaml:"-"`
	MaxResponseBytes int64         `yaml:"-"`
}

type Prerender struct {
	// Template is the client document. Empty means the built-in shell.
	Template   string            `yaml:"template"`
	OutDir     string            `yaml:"outDir"`
	GlobalName string            `yaml:"globalName"`
	SiteURL    string            `yaml:"siteURL"`
	Routes     []prerender.Route `yaml:"routes"`
}

type Archive struct {
	Mode     string `yaml:"mode"`
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Max      string `yaml:"max"`
	RedisURL string `yaml:"redisURL"`
	Prefix   string `yaml:"prefix"`
	TTL      string `yaml:"ttl"`

	ModeVal  archive.Mode  `yaml:"-"`
	MaxBytes int64         `yaml:"-"`
	TTLDur   time.Duration `yaml:"-"`
}

type Serve struct {
	Port          int    `yaml:"port"`
	PageTTL       string `yaml:"pageTTL"`
	PageCacheSize int    `yaml:"pageCacheSize"`
	Rules         []Rule `yaml:"rules"`

	PageTTLDur time.Duration `yaml:"-"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var jsIdent = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

const (
	DriverLevelDB = "leveldb"
	DriverRedis   = "redis"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.StaleTime = query.DefaultStaleTime.String()
	cfg.Upstream = Upstream{
		JDS:         jds.DefaultBaseURL,
		NES:         nes.DefaultBaseURL,
		Timeout:     upstream.DefaultTimeout.String(),
		MaxResponse: "8mb",
	}
	cfg.Prerender = Prerender{
		OutDir:     "dist/client",
		GlobalName: prerender.DefaultGlobalName,
		Routes:     []prerender.Route{{URL: "/"}, {URL: "/about"}, {URL: "/information"}},
	}
	cfg.Archive = Archive{Mode: string(archive.ModeOff), Driver: DriverLevelDB, Path: "./data/archive", Max: "256mb", Prefix: "jawafdehi:archive"}
	cfg.Serve = Serve{Port: 8080, PageTTL: "1m", PageCacheSize: 1000}
	cfg.Log = Log{Level: "info", Format: "text"}
	return cfg
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file. A .env file in the
// working directory is loaded first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &Error{Path: path, Err: err}
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, &Error{Path: path, Err: err}
		}
	}
	applyEnv(&cfg)

	if err := cfg.compile(); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Upstream.JDS = getEnv("JDS_API_BASE_URL", cfg.Upstream.JDS)
	cfg.Upstream.NES = getEnv("NES_API_BASE_URL", cfg.Upstream.NES)
	cfg.Archive.Mode = getEnv("ARCHIVE_MODE", cfg.Archive.Mode)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Serve.Port = getIntEnv("PORT", cfg.Serve.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (c *Config) compile() error {
	var err error
	if c.StaleDur, err = parseStaleTime(c.StaleTime); err != nil {
		return fmt.Errorf("staleTime: %w", err)
	}

	c.Upstream.JDS = strings.TrimRight(c.Upstream.JDS, "/")
	c.Upstream.NES = strings.TrimRight(c.Upstream.NES, "/")
	if c.Upstream.TimeoutDur, err = time.ParseDuration(c.Upstream.Timeout); err != nil {
		return fmt.Errorf("upstream.timeout: %w", err)
	}
	if c.Upstream.MaxResponseBytes, err = bytesize.Parse(c.Upstream.MaxResponse); err != nil {
		return fmt.Errorf("upstream.maxResponse: %w", err)
	}

	if c.Archive.ModeVal, err = archive.ParseMode(c.Archive.Mode); err != nil {
		return fmt.Errorf("archive.mode: %w", err)
	}
	if c.Archive.Max != "" {
		if c.Archive.MaxBytes, err = bytesize.Parse(c.Archive.Max); err != nil {
			return fmt.Errorf("archive.max: %w", err)
		}
	}
	if c.Archive.TTL != "" {
		if c.Archive.TTLDur, err = time.ParseDuration(c.Archive.TTL); err != nil {
			return fmt.Errorf("archive.ttl: %w", err)
		}
	}

	if c.Serve.PageTTLDur, err = time.ParseDuration(c.Serve.PageTTL); err != nil {
		return fmt.Errorf("serve.pageTTL: %w", err)
	}
	for i := range c.Serve.Rules {
		r := &c.Serve.Rules[i]
		ms, err := parseMatch(r.Match)
		if err != nil {
			return fmt.Errorf("serve.rules[%d].match: %w", i, err)
		}
		r.matchers = ms
	}
	sort.SliceStable(c.Serve.Rules, func(i, j int) bool {
		return c.Serve.Rules[i].Priority < c.Serve.Rules[j].Priority
	})
	return nil
}

// parseStaleTime accepts a duration or "forever".
func parseStaleTime(s string) (time.Duration, error) {
	if strings.EqualFold(strings.TrimSpace(s), "forever") {
		return query.Forever, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New(`must be positive or "forever"`)
	}
	return d, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Upstream),
		validation.Field(&c.Prerender),
		validation.Field(&c.Archive),
		validation.Field(&c.Serve),
		validation.Field(&c.Log),
	)
}

func (u Upstream) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.JDS, validation.Required, is.URL),
		validation.Field(&u.NES, validation.Required, is.URL),
		validation.Field(&u.TimeoutDur, validation.Min(time.Millisecond)),
		validation.Field(&u.MaxResponseBytes, validation.Min(int64(1))),
	)
}

func (p Prerender) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.OutDir, validation.Required),
		validation.Field(&p.GlobalName, validation.Required, validation.Match(jsIdent)),
		validation.Field(&p.SiteURL, is.URL),
		validation.Field(&p.Routes, validation.Required, validation.Each(validation.By(validRoute))),
	)
}

func validRoute(v interface{}) error {
	r, ok := v.(prerender.Route)
	if !ok {
		return errors.New("not a route")
	}
	if !strings.HasPrefix(r.URL, "/") {
		return fmt.Errorf("route %q must start with /", r.URL)
	}
	return nil
}

func (a Archive) Validate() error {
	active := a.ModeVal != archive.ModeOff
	return validation.ValidateStruct(&a,
		validation.Field(&a.Driver, validation.When(active, validation.Required, validation.In(DriverLevelDB, DriverRedis))),
		validation.Field(&a.Path, validation.When(active && a.Driver == DriverLevelDB, validation.Required)),
		validation.Field(&a.RedisURL, validation.When(active && a.Driver == DriverRedis, validation.Required)),
	)
}

func (s Serve) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&s.PageCacheSize, validation.Min(0)),
	)
}

func (l Log) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("trace", "debug", "info", "warn", "warning", "error", "fatal", "panic")),
		validation.Field(&l.Format, validation.In("json", "text")),
	)
}

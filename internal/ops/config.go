package ops

import (
	"encoding/json"
	"os"
	"time"

	"main/internal/extract"
	"main/internal/inject"
	"main/internal/model/enum"
	"main/internal/normalize"
	"main/internal/orchestrator"
	"main/internal/ratelimit"
	"main/pkg/conn"

	"github.com/yanun0323/errors"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Database  DatabaseConfig  `json:"database"`
	RateLimit RateLimitConfig `json:"rateLimit"`
	Run       RunConfig       `json:"run"`
	Drift     DriftConfig     `json:"drift"`
	Inject    []inject.Rule   `json:"inject"`
	Sources   []SourceConfig  `json:"sources"`
}

// DatabaseConfig describes the postgres pool.
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Database     string `json:"database"`
	SSLMode      string `json:"sslMode"`
	MaxOpenConns int    `json:"maxOpenConns"`
	MaxIdleConns int    `json:"maxIdleConns"`
}

// RateLimitConfig describes the shared limiter defaults.
type RateLimitConfig struct {
	RequestsPerMinute int     `json:"requestsPerMinute"`
	MaxRetries        int     `json:"maxRetries"`
	BackoffMinSeconds float64 `json:"backoffMinSeconds"`
	BackoffMaxSeconds float64 `json:"backoffMaxSeconds"`
	BackoffFactor     float64 `json:"backoffFactor"`
	BackoffJitter     float64 `json:"backoffJitter"`
}

// RunConfig tunes a single orchestration run.
type RunConfig struct {
	Parallel       bool `json:"parallel"`
	TimeoutSeconds int  `json:"timeoutSeconds"`
}

// DriftConfig tunes fuzzy schema matching.
type DriftConfig struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
}

// SourceConfig describes one configured source entry.
type SourceConfig struct {
	ID           string            `json:"id"`
	Type         enum.SourceType   `json:"type"`
	Enabled      *bool             `json:"enabled"`
	Endpoint     string            `json:"endpoint"`
	APIKey       string            `json:"apiKey"`
	Path         string            `json:"path"`
	FeedURL      string            `json:"feedURL"`
	RateLimit    int               `json:"rateLimit"`
	PerPage      int               `json:"perPage"`
	PageCap      int               `json:"pageCap"`
	BatchSize    int               `json:"batchSize"`
	FieldMapping map[string]string `json:"fieldMapping"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Database  conn.Option
	RateLimit ratelimit.Config
	Limits    map[string]int
	Run       orchestrator.Config
	Drift     normalize.Config
	Mappings  map[enum.SourceType]normalize.Mapping
	Inject    []inject.Rule
	Sources   []SourceConfig
}

// Load reads a JSON config file and resolves it for use.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return Resolve(cfg)
}

// Resolve validates a parsed config and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	sources, err := enabledSources(cfg.Sources)
	if err != nil {
		return Loaded{}, err
	}
	if len(sources) == 0 {
		return Loaded{}, errors.New("config: no enabled sources")
	}
	for _, rule := range cfg.Inject {
		if err := rule.Validate(); err != nil {
			return Loaded{}, err
		}
	}

	limits := make(map[string]int)
	mappings := make(map[enum.SourceType]normalize.Mapping)
	for _, src := range sources {
		if src.RateLimit > 0 {
			limits[src.ID] = src.RateLimit
		}
		if len(src.FieldMapping) > 0 {
			mappings[src.Type] = src.FieldMapping
		}
	}

	return Loaded{
		Database:  cfg.Database.option(),
		RateLimit: cfg.RateLimit.resolve(),
		Limits:    limits,
		Run: orchestrator.Config{
			Parallel:   cfg.Run.Parallel,
			RunTimeout: time.Duration(cfg.Run.TimeoutSeconds) * time.Second,
		},
		Drift:    normalize.Config{ConfidenceThreshold: cfg.Drift.ConfidenceThreshold},
		Mappings: mappings,
		Inject:   cfg.Inject,
		Sources:  sources,
	}, nil
}

// BuildExtractors constructs one extractor per enabled source, wrapping
// network-bound sources with the rate-limit guard.
func (l Loaded) BuildExtractors(guard extract.Guard) []extract.Extractor {
	out := make([]extract.Extractor, 0, len(l.Sources))
	for _, src := range l.Sources {
		switch src.Type {
		case enum.SourceTypeAPI:
			out = append(out, extract.NewAPI(extract.APIConfig{
				SourceID: src.ID,
				Endpoint: src.Endpoint,
				APIKey:   src.APIKey,
				PerPage:  src.PerPage,
				PageCap:  src.PageCap,
			}, guard))
		case enum.SourceTypeCSV:
			out = append(out, extract.NewCSV(extract.CSVConfig{
				SourceID:  src.ID,
				Path:      src.Path,
				BatchSize: src.BatchSize,
			}))
		case enum.SourceTypeRSS:
			out = append(out, extract.NewRSS(extract.RSSConfig{
				SourceID: src.ID,
				FeedURL:  src.FeedURL,
			}, guard))
		}
	}
	return out
}

func enabledSources(sources []SourceConfig) ([]SourceConfig, error) {
	seen := make(map[string]struct{}, len(sources))
	out := make([]SourceConfig, 0, len(sources))
	for _, src := range sources {
		if err := src.validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[src.ID]; ok {
			return nil, errors.Errorf("config: duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
		if src.Enabled != nil && !*src.Enabled {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

func (s SourceConfig) validate() error {
	if s.ID == "" {
		return errors.New("config: source requires an id")
	}
	switch s.Type {
	case enum.SourceTypeAPI:
		if s.Endpoint == "" {
			return errors.Errorf("config: api source %q requires an endpoint", s.ID)
		}
	case enum.SourceTypeCSV:
		if s.Path == "" {
			return errors.Errorf("config: csv source %q requires a path", s.ID)
		}
	case enum.SourceTypeRSS:
		if s.FeedURL == "" {
			return errors.Errorf("config: rss source %q requires a feed url", s.ID)
		}
	default:
		return errors.Errorf("config: source %q has unknown type %q", s.ID, s.Type)
	}
	return nil
}

func (d DatabaseConfig) option() conn.Option {
	return conn.Option{
		Host:         d.Host,
		Port:         d.Port,
		User:         d.User,
		Password:     d.Password,
		Database:     d.Database,
		SSLMode:      d.SSLMode,
		MaxOpenConns: d.MaxOpenConns,
		MaxIdleConns: d.MaxIdleConns,
	}
}

func (r RateLimitConfig) resolve() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if r.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = r.RequestsPerMinute
	}
	if r.MaxRetries > 0 {
		cfg.MaxRetries = r.MaxRetries
	}
	if r.BackoffMinSeconds > 0 {
		cfg.Backoff.Min = time.Duration(r.BackoffMinSeconds * float64(time.Second))
	}
	if r.BackoffMaxSeconds > 0 {
		cfg.Backoff.Max = time.Duration(r.BackoffMaxSeconds * float64(time.Second))
	}
	if r.BackoffFactor > 0 {
		cfg.Backoff.Factor = r.BackoffFactor
	}
	if r.BackoffJitter > 0 {
		cfg.Backoff.Jitter = r.BackoffJitter
	}
	return cfg
}

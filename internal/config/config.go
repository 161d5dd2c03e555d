// Package config loads agentflow settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	yaml "go.yaml.in/yaml/v2"
)

// Config is the root configuration.
type Config struct {
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Server    ServerConfig    `yaml:"server"`
	Workflows WorkflowsConfig `yaml:"workflows"`
}

// ProviderConfig is one LLM provider account.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ProvidersConfig holds every provider the workflows can use.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `yaml:"openai"`
	Anthropic  ProviderConfig `yaml:"anthropic"`
	Google     ProviderConfig `yaml:"google"`
	Groq       ProviderConfig `yaml:"groq"`
	Perplexity ProviderConfig `yaml:"perplexity"`
}

// Get returns the provider named name.
func (p ProvidersConfig) Get(name string) (ProviderConfig, bool) {
	switch name {
	case "openai":
		return p.OpenAI, true
	case "anthropic":
		return p.Anthropic, true
	case "google":
		return p.Google, true
	case "groq":
		return p.Groq, true
	case "perplexity":
		return p.Perplexity, true
	default:
		return ProviderConfig{}, false
	}
}

// SearchConfig covers web and news search.
type SearchConfig struct {
	TavilyAPIKey string        `yaml:"tavily_api_key"`
	TavilyURL    string        `yaml:"tavily_url"`
	MaxResults   int           `yaml:"max_results"`
	RedisURL     string        `yaml:"redis_url"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	NewsAPIKey   string        `yaml:"news_api_key"`
	NewsURL      string        `yaml:"news_url"`
}

// StoreConfig selects the workflow state store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// TelemetryConfig enables OTLP tracing when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Enabled reports whether traces are exported.
func (c TelemetryConfig) Enabled() bool {
	return c.Endpoint != ""
}

// ServerConfig configures the tool server. The http_request tool is only
// served when HTTPToolHosts lists the hosts it may call.
type ServerConfig struct {
	Addr          string   `yaml:"addr"`
	HTTPToolHosts []string `yaml:"http_tool_hosts"`
}

// WorkflowsConfig holds per-workflow settings.
type WorkflowsConfig struct {
	Management ManagementConfig `yaml:"management"`
	Text       TextConfig       `yaml:"text"`
	Music      MusicConfig      `yaml:"music"`
	Image      ImageConfig      `yaml:"image"`
	Comments   CommentsConfig   `yaml:"comments"`
}

// ManagementConfig configures issue monitoring.
type ManagementConfig struct {
	Provider      string `yaml:"provider"`
	MaxSteps      int    `yaml:"max_steps"`
	ParallelLimit int    `yaml:"parallel_limit"`
	MaxRetries    int    `yaml:"max_retries"`
}

// TextConfig configures caption generation.
type TextConfig struct {
	Provider    string `yaml:"provider"`
	SafetyModel string `yaml:"safety_model"`
}

// MusicConfig configures lyric generation.
type MusicConfig struct {
	Provider      string `yaml:"provider"`
	WeatherAPIKey string `yaml:"weather_api_key"`
	WeatherURL    string `yaml:"weather_url"`
	NX            int    `yaml:"nx"`
	NY            int    `yaml:"ny"`
}

// ImageConfig configures face generation.
type ImageConfig struct {
	Provider   string             `yaml:"provider"`
	ImageModel string             `yaml:"image_model"`
	ComfyUIURL string             `yaml:"comfyui_url"`
	Storage    ImageStorageConfig `yaml:"storage"`
}

// ImageStorageConfig selects where generated images go: "local" or
// "minio".
type ImageStorageConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// CommentsConfig configures comment collection.
type CommentsConfig struct {
	ProfileURL string `yaml:"profile_url"`
	MaxPosts   int    `yaml:"max_posts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Providers: ProvidersConfig{
			OpenAI:     ProviderConfig{Model: "gpt-4o-mini"},
			Anthropic:  ProviderConfig{Model: "claude-3-5-sonnet-latest"},
			Google:     ProviderConfig{Model: "gemini-2.0-flash"},
			Groq:       ProviderConfig{BaseURL: "https://api.groq.com/openai/v1/", Model: "llama3-8b-8192"},
			Perplexity: ProviderConfig{BaseURL: "https://api.perplexity.ai/", Model: "llama-3.1-sonar-small-128k-online"},
		},
		Search: SearchConfig{
			TavilyURL:  "https://api.tavily.com/search",
			MaxResults: 20,
			CacheTTL:   10 * time.Minute,
			NewsURL:    "https://newsapi.org/v2/everything",
		},
		Store:     StoreConfig{Driver: "memory"},
		Telemetry: TelemetryConfig{ServiceName: "agentflow"},
		Server:    ServerConfig{Addr: ":8080"},
		Workflows: WorkflowsConfig{
			Management: ManagementConfig{Provider: "openai", MaxSteps: 50, ParallelLimit: 4, MaxRetries: 2},
			Text:       TextConfig{Provider: "openai", SafetyModel: "meta-llama/llama-guard-4-12b"},
			Music: MusicConfig{
				Provider:   "groq",
				WeatherURL: "https://apis.data.go.kr/1360000/VilageFcstInfoService_2.0/getUltraSrtFcst",
				NX:         60,
				NY:         126,
			},
			Image: ImageConfig{
				Provider:   "openai",
				ImageModel: "gemini-2.0-flash-exp-image-generation",
				ComfyUIURL: "ws://localhost:9000",
				Storage:    ImageStorageConfig{Backend: "local", Dir: "images"},
			},
			Comments: CommentsConfig{MaxPosts: 8},
		},
	}
}

// Load builds the configuration. path may be empty, in which case only the
// defaults and the environment apply. A .env file in the working directory
// is loaded when present; variables already set in the environment win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.Providers.Google.APIKey, "GOOGLE_API_KEY")
	setString(&c.Providers.Groq.APIKey, "GROQ_API_KEY")
	setString(&c.Providers.Perplexity.APIKey, "PERPLEXITY_API_KEY")
	setString(&c.Search.TavilyAPIKey, "TAVILY_API_KEY")
	setString(&c.Search.NewsAPIKey, "NEWS_API_KEY")
	setString(&c.Search.RedisURL, "REDIS_URL")
	setString(&c.Workflows.Music.WeatherAPIKey, "WEATHER_API_KEY")
	setString(&c.Store.DSN, "STORE_DSN")
	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Workflows.Image.ComfyUIURL, "COMFYUI_URL")
	setString(&c.Workflows.Image.Storage.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Workflows.Image.Storage.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Workflows.Image.Storage.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Workflows.Image.Storage.Bucket, "MINIO_BUCKET")
	if v, err := strconv.ParseBool(os.Getenv("MINIO_USE_SSL")); err == nil {
		c.Workflows.Image.Storage.UseSSL = v
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Workflow names accepted by Validate.
const (
	WorkflowManagement = "management"
	WorkflowText       = "text"
	WorkflowMusic      = "music"
	WorkflowImage      = "image"
	WorkflowComments   = "comments"
	WorkflowServer     = "serve"
)

// Validate reports every value workflow needs but does not have.
func (c *Config) Validate(workflow string) error {
	var errs []error
	need := func(ok bool, what string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %s is required", workflow, what))
		}
	}
	provider := func(name string) {
		p, ok := c.Providers.Get(name)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", workflow, name))
			return
		}
		need(p.APIKey != "", name+" API key")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "mysql":
		need(c.Store.DSN != "", "store dsn")
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	switch workflow {
	case WorkflowManagement:
		provider(c.Workflows.Management.Provider)
		need(c.Search.TavilyAPIKey != "", "TAVILY_API_KEY")
		need(c.Workflows.Management.ParallelLimit > 0, "parallel_limit > 0")
	case WorkflowText:
		provider(c.Workflows.Text.Provider)
		need(c.Providers.Groq.APIKey != "", "GROQ_API_KEY")
	case WorkflowMusic:
		provider(c.Workflows.Music.Provider)
	case WorkflowImage:
		provider(c.Workflows.Image.Provider)
		need(c.Providers.Google.APIKey != "", "GOOGLE_API_KEY")
		need(c.Workflows.Image.ComfyUIURL != "", "comfyui_url")
		switch c.Workflows.Image.Storage.Backend {
		case "local":
			need(c.Workflows.Image.Storage.Dir != "", "image storage dir")
		case "minio":
			need(c.Workflows.Image.Storage.Endpoint != "", "MINIO_ENDPOINT")
			need(c.Workflows.Image.Storage.Bucket != "", "MINIO_BUCKET")
		default:
			errs = append(errs, fmt.Errorf("image: unknown storage backend %q", c.Workflows.Image.Storage.Backend))
		}
	case WorkflowComments:
		need(c.Workflows.Comments.ProfileURL != "", "profile_url")
	case WorkflowServer:
		need(c.Server.Addr != "", "server addr")
	default:
		errs = append(errs, fmt.Errorf("unknown workflow %q", workflow))
	}
	return errors.Join(errs...)
}

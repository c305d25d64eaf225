package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type ScraperConfig struct {
	UserAgent        string `yaml:"userAgent"`
	TimeoutSec       int    `yaml:"timeoutSec"`
	RespectRobotsTxt bool   `yaml:"respectRobotsTxt"`
}

type SearchConfig struct {
	BaseURL      string `yaml:"baseURL"`
	DefaultLimit int    `yaml:"defaultLimit"`
	TimeoutSec   int    `yaml:"timeoutSec"`
}

type BudgetConfig struct {
	MaxContentMB    int `yaml:"maxContentMB"`
	MaxTokens       int `yaml:"maxTokens"`
	MaxPerPageChars int `yaml:"maxPerPageChars"`
}

type LLMConfig struct {
	DefaultModel string `yaml:"defaultModel"`
	CheapModel   string `yaml:"cheapModel"`
	TimeoutSec   int    `yaml:"timeoutSec"`
}

// OIDCConfig enables Google identity-token verification at the edge.
// Empty issuer disables the check.
type OIDCConfig struct {
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	AllowedEmails []string `yaml:"allowedEmails"`
}

type AuthConfig struct {
	AccessSecret string     `yaml:"accessSecret"`
	OIDC         OIDCConfig `yaml:"oidc"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	DefaultPerMinute int  `yaml:"defaultPerMinute"`
}

// PromptsConfig replaces the built-in system prompts process-wide.
// Per-request overrides still win over these.
type PromptsConfig struct {
	DecisionSystem string `yaml:"decisionSystem"`
	DirectSystem   string `yaml:"directSystem"`
	SearchSystem   string `yaml:"searchSystem"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Search    SearchConfig    `yaml:"search"`
	Budget    BudgetConfig    `yaml:"budget"`
	LLM       LLMConfig       `yaml:"llm"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Prompts   PromptsConfig   `yaml:"prompts"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Scraper.TimeoutSec == 0 {
		c.Scraper.TimeoutSec = 10
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = 5
	}
	if c.Search.TimeoutSec == 0 {
		c.Search.TimeoutSec = 10
	}
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "groq:llama-3.1-8b-instant"
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.RateLimit.DefaultPerMinute == 0 {
		c.RateLimit.DefaultPerMinute = 60
	}
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"` // unset means 0.2; 0 is kept
}

type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Endpoint   string `yaml:"endpoint"`
	Token      string `yaml:"token"`
	Namespace  string `yaml:"namespace"`
	Collection string `yaml:"collection"`
	URL        string `yaml:"url"` // postgres connection string
	Dimension  int    `yaml:"dimension"`
	Metric     string `yaml:"metric"`
	BatchSize  int    `yaml:"batch_size"`
}

type RetrievalConfig struct {
	MinSimilarity    float64  `yaml:"min_similarity"`
	VectorLimit      int      `yaml:"vector_limit"`
	BrowseLimit      int      `yaml:"browse_limit"`
	BrowseKeywords   []string `yaml:"browse_keywords"`
	MaxContextLength int      `yaml:"max_context_length"`
	Debug            bool     `yaml:"debug"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	MaxPages          int      `yaml:"max_pages"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize       int  `yaml:"chunk_size"`
	ChunkOverlap    int  `yaml:"chunk_overlap"`
	MinChunkLength  int  `yaml:"min_chunk_length"`
	Lowercase       bool `yaml:"lowercase"`
	RemoveStopwords bool `yaml:"remove_stopwords"`
}

type CraftsmenConfig struct {
	APIURL    string   `yaml:"api_url"`
	Token     string   `yaml:"token"`
	Crafts    []string `yaml:"crafts"`
	PageSize  int      `yaml:"page_size"`
	RateLimit float64  `yaml:"rate_limit"`
}

type UIConfig struct {
	Streaming bool   `yaml:"streaming"`
	Theme     string `yaml:"theme"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Craftsmen CraftsmenConfig `yaml:"craftsmen"`
	UI        UIConfig        `yaml:"ui"`
	Log       LogConfig       `yaml:"log"`
}

// DefaultLocations are searched in order when no config path is given.
func DefaultLocations() []string {
	return []string{
		"config.yaml",
		"config.yml",
		filepath.Join(os.Getenv("HOME"), ".config/craftsman/config.yaml"),
		"/etc/craftsman/config.yaml",
	}
}

// LoadDotEnv reads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", f, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		for _, loc := range DefaultLocations() {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// embeddingDimensions holds the output size of well-known embedding models,
// keyed by lowercased name without an ollama tag or "models/" prefix.
var embeddingDimensions = map[string]int{
	"xenova/all-minilm-l6-v2":                384,
	"sentence-transformers/all-minilm-l6-v2": 384,
	"text-embedding-004":                     768,
	"nomic-embed-text":                       768,
	"mxbai-embed-large":                      1024,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "google":
		return "text-embedding-004"
	case "ollama":
		return "nomic-embed-text:latest"
	case "openai":
		return "text-embedding-3-small"
	default:
		return "Xenova/all-MiniLM-L6-v2"
	}
}

// EmbeddingDimension returns the vector size model is known to produce, or 0
// when the model is not recognised.
func EmbeddingDimension(model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	name = strings.TrimPrefix(name, "models/")
	name, _, _ = strings.Cut(name, ":")
	return embeddingDimensions[name]
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "gemini"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "mistral"
		case "openai":
			config.LLM.Model = "gpt-4o-mini"
		case "anthropic":
			config.LLM.Model = "claude-3-5-haiku-latest"
		default:
			config.LLM.Model = "gemini-1.5-flash"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == nil {
		t := 0.2
		config.LLM.Temperature = &t
	}
	if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = "sentence"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = defaultEmbeddingModel(config.Embedding.Provider)
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "astra"
	}
	if config.Store.Namespace == "" {
		config.Store.Namespace = "default_keyspace"
	}
	if config.Store.Collection == "" {
		config.Store.Collection = "craftsmen"
	}
	if config.Store.Dimension == 0 {
		config.Store.Dimension = EmbeddingDimension(config.Embedding.Model)
		if config.Store.Dimension == 0 {
			config.Store.Dimension = 384
		}
	}
	if config.Store.Metric == "" {
		config.Store.Metric = "cosine"
	}
	if config.Store.BatchSize == 0 {
		config.Store.BatchSize = 20
	}

	if config.Retrieval.MinSimilarity == 0 {
		config.Retrieval.MinSimilarity = 0.2
	}
	if config.Retrieval.VectorLimit == 0 {
		config.Retrieval.VectorLimit = 15
	}
	if config.Retrieval.BrowseLimit == 0 {
		config.Retrieval.BrowseLimit = 10
	}
	if config.Retrieval.BrowseKeywords == nil {
		config.Retrieval.BrowseKeywords = []string{"taskrabbit"}
	}
	if config.Retrieval.MaxContextLength == 0 {
		config.Retrieval.MaxContextLength = 30000
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 50
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", ".php", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 512
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 100
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 20
	}

	if config.Craftsmen.PageSize == 0 {
		config.Craftsmen.PageSize = 100
	}
	if config.Craftsmen.RateLimit == 0 {
		config.Craftsmen.RateLimit = 2.0
	}

	if config.UI.Theme == "" {
		config.UI.Theme = "default"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func mergeWithEnv(config *Config) {
	setFromEnv(&config.Store.Namespace, "ASTRA_DB_NAMESPACE")
	setFromEnv(&config.Store.Collection, "ASTRA_DB_COLLECTION")
	setFromEnv(&config.Store.Endpoint, "ASTRA_DB_API_ENDPOINT")
	setFromEnv(&config.Store.Token, "ASTRA_DB_APPLICATION_TOKEN")
	setFromEnv(&config.Store.URL, "DATABASE_URL")

	setFromEnv(&config.Embedding.URL, "SENTENCE_TRANSFORMER_API_URL")
	setFromEnv(&config.Craftsmen.APIURL, "CRAFTSMEN_API_URL")
	setFromEnv(&config.Craftsmen.Token, "CRAFTSMEN_API_TOKEN")

	// Provider keys only apply to the provider that uses them.
	keys := map[string]string{
		"gemini":    "GOOGLE_API_KEY",
		"google":    "GOOGLE_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
	llmProvider := config.LLM.Provider
	if llmProvider == "" {
		llmProvider = "gemini"
	}
	if key, ok := keys[llmProvider]; ok {
		setFromEnv(&config.LLM.APIKey, key)
	}
	if key, ok := keys[config.Embedding.Provider]; ok {
		setFromEnv(&config.Embedding.APIKey, key)
	}

	switch llmProvider {
	case "ollama":
		setFromEnv(&config.LLM.BaseURL, "OLLAMA_BASE_URL")
	case "openai":
		setFromEnv(&config.LLM.BaseURL, "MODEL_BASE_URL")
	}
	switch config.Embedding.Provider {
	case "ollama":
		setFromEnv(&config.Embedding.URL, "OLLAMA_BASE_URL")
	case "openai":
		setFromEnv(&config.Embedding.URL, "MODEL_BASE_URL")
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(port)); err == nil {
			config.Server.Port = p
		}
	}
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

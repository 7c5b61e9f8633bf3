package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is the configuration file looked up when --config is not changed.
const DefaultFile = "hardgate.toml"

// ProviderConfig holds the credentials of one LLM provider
type ProviderConfig struct {
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// LLMConfig configures the LLM adapter
type LLMConfig struct {
	MaxTokens   int            `koanf:"max_tokens"`
	Temperature float64        `koanf:"temperature"`
	CacheFile   string         `koanf:"cache_file"`
	LogDir      string         `koanf:"log_dir"`
	OpenAI      ProviderConfig `koanf:"openai"`
	Anthropic   ProviderConfig `koanf:"anthropic"`
	Google      ProviderConfig `koanf:"google"`
}

// Configured reports whether any provider has credentials. A custom OpenAI
// base URL counts as a local model and needs no key.
func (c LLMConfig) Configured() bool {
	return c.OpenAI.APIKey != "" || c.OpenAI.BaseURL != "" || c.Anthropic.APIKey != "" || c.Google.APIKey != ""
}

// CrawlConfig configures repository fetching
type CrawlConfig struct {
	MaxFileSize  int64         `koanf:"max_file_size"`
	CloneTimeout time.Duration `koanf:"clone_timeout"`
	GitHubToken  string        `koanf:"github_token"`
	GitUsername  string        `koanf:"git_username"`
	Include      []string      `koanf:"include"`
	Exclude      []string      `koanf:"exclude"`
}

// AnalysisConfig tunes the hard-gate analyzer
type AnalysisConfig struct {
	MaxFileChars int    `koanf:"max_file_chars"`
	CacheDir     string `koanf:"cache_dir"`
}

// IndexConfig configures the report index
type IndexConfig struct {
	Enabled            bool   `koanf:"enabled"`
	Backend            string `koanf:"backend"`
	PersistDir         string `koanf:"persist_dir"`
	AnalysisCollection string `koanf:"analysis_collection"`
	OCPCollection      string `koanf:"ocp_collection"`
	ChromaURL          string `koanf:"chroma_url"`
	ChromaAPIKey       string `koanf:"chroma_api_key"`
}

// EmbeddingConfig selects and tunes the embedding backend
type EmbeddingConfig struct {
	UseLocal        bool   `koanf:"use_local"`
	UseEndpoint     bool   `koanf:"use_endpoint"`
	EndpointURL     string `koanf:"endpoint_url"`
	EndpointTimeout int    `koanf:"endpoint_timeout"` // seconds per text
	FallbackDim     int    `koanf:"fallback_dim"`
	LocalModel      string `koanf:"local_model"`
	LocalModelDir   string `koanf:"local_model_cache_dir"`
	LocalServerURL  string `koanf:"local_server_url"`
	HostedModel     string `koanf:"hosted_model"`
}

// JiraConfig configures the Jira enrichment stage
type JiraConfig struct {
	URL        string `koanf:"url"`
	Username   string `koanf:"username"`
	APIToken   string `koanf:"api_token"`
	ProjectKey string `koanf:"project_key"`
	MaxResults int    `koanf:"max_results"`
}

// Configured reports whether Jira credentials are complete.
func (j JiraConfig) Configured() bool {
	return j.URL != "" && j.Username != "" && j.APIToken != ""
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port  int    `koanf:"port"`
	Queue string `koanf:"queue"`
	// Workers bounds concurrent assessments. Runs share the process-wide run
	// logger, so more than one interleaves run logs.
	Workers int `koanf:"workers"`
}

// Config represents the application configuration
type Config struct {
	OutputDir   string          `koanf:"output_dir"`
	DatabaseURL string          `koanf:"database_url"`
	LLM         LLMConfig       `koanf:"llm"`
	Crawl       CrawlConfig     `koanf:"crawl"`
	Analysis    AnalysisConfig  `koanf:"analysis"`
	Index       IndexConfig     `koanf:"index"`
	Embedding   EmbeddingConfig `koanf:"embedding"`
	Jira        JiraConfig      `koanf:"jira"`
	Server      ServerConfig    `koanf:"server"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"output_dir": "./analysis_output",

		"llm.max_tokens":      8000,
		"llm.temperature":     0.1,
		"llm.cache_file":      "llm_cache.json",
		"llm.log_dir":         "logs",
		"llm.openai.model":    "gpt-4o",
		"llm.anthropic.model": "claude-3-sonnet-20240229",
		"llm.google.model":    "gemini-pro",

		"crawl.max_file_size": 100000,
		"crawl.clone_timeout": "300s",
		"crawl.include":       DefaultIncludePatterns,
		"crawl.exclude":       DefaultExcludePatterns,

		"analysis.max_file_chars": 50000,
		"analysis.cache_dir":      ".hardgate_cache",

		"index.enabled":             true,
		"index.backend":             "file",
		"index.persist_dir":         "./chroma_db",
		"index.analysis_collection": "analysis_reports",
		"index.ocp_collection":      "ocp_assessment_reports",
		"index.chroma_url":          "http://localhost:8000",

		"embedding.endpoint_url":          "http://localhost:1234",
		"embedding.endpoint_timeout":      30,
		"embedding.fallback_dim":          384,
		"embedding.local_model":           "all-minilm",
		"embedding.local_model_cache_dir": "./model_cache",
		"embedding.local_server_url":      "http://localhost:11434",
		"embedding.hosted_model":          "text-embedding-3-small",

		"jira.project_key": "XYZ",
		"jira.max_results": 10,

		"server.port":    8000,
		"server.queue":   "memory",
		"server.workers": 1,
	}
}

// DefaultIncludePatterns are the file globs crawled when --include is not set.
var DefaultIncludePatterns = []string{
	"*.py", "*.js", "*.ts", "*.java", "*.go", "*.rb", "*.php", "*.cpp", "*.h", "*.hpp", "*.c", "*.cs", "*.swift",
	"*.yaml", "*.yml", "*.json", "*.xml", "*.html", "*.css", "*.properties", "*.gradle",
	"Dockerfile", "docker-compose*.yml", "*.sh", "*.bash", "*.md", "*.rst", "*.txt",
}

// DefaultExcludePatterns are the globs skipped when --exclude is not set.
var DefaultExcludePatterns = []string{
	"tests/*", "test/*", "docs/*", "node_modules/*", "__pycache__/*", "*.test.*", "*.spec.*", "*.min.*",
	"dist/*", "build/*", ".git/*", ".github/*", ".vscode/*", "*.log",
}

// envKeys maps the documented environment variables onto configuration keys.
var envKeys = map[string]string{
	"OPENAI_API_KEY":    "llm.openai.api_key",
	"OPENAI_BASE_URL":   "llm.openai.base_url",
	"OPENAI_MODEL":      "llm.openai.model",
	"ANTHROPIC_API_KEY": "llm.anthropic.api_key",
	"ANTHROPIC_MODEL":   "llm.anthropic.model",
	"GOOGLE_API_KEY":    "llm.google.api_key",
	"GOOGLE_MODEL":      "llm.google.model",

	"GITHUB_TOKEN": "crawl.github_token",
	"GIT_USERNAME": "crawl.git_username",

	"JIRA_URL":         "jira.url",
	"JIRA_USERNAME":    "jira.username",
	"JIRA_API_TOKEN":   "jira.api_token",
	"JIRA_PROJECT_KEY": "jira.project_key",

	"USE_CHROMADB":                 "index.enabled",
	"CHROMADB_PERSIST_DIR":         "index.persist_dir",
	"CHROMADB_ANALYSIS_COLLECTION": "index.analysis_collection",
	"CHROMADB_OCP_COLLECTION":      "index.ocp_collection",
	"CHROMADB_URL":                 "index.chroma_url",
	"CHROMADB_API_KEY":             "index.chroma_api_key",

	"USE_LOCAL_EMBEDDINGS":       "embedding.use_local",
	"USE_ENDPOINT_EMBEDDINGS":    "embedding.use_endpoint",
	"EMBEDDING_ENDPOINT_URL":     "embedding.endpoint_url",
	"EMBEDDING_ENDPOINT_TIMEOUT": "embedding.endpoint_timeout",
	"LOCAL_MODEL_NAME":           "embedding.local_model",
	"LOCAL_MODEL_CACHE_DIR":      "embedding.local_model_cache_dir",

	"DATABASE_URL": "database_url",
}

// EnvVars lists the documented environment variables in a stable order.
func EnvVars() []string {
	return []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY",
		"GITHUB_TOKEN", "GIT_USERNAME",
		"JIRA_URL", "JIRA_USERNAME", "JIRA_API_TOKEN", "JIRA_PROJECT_KEY",
		"USE_CHROMADB", "CHROMADB_PERSIST_DIR", "CHROMADB_ANALYSIS_COLLECTION", "CHROMADB_OCP_COLLECTION",
		"USE_LOCAL_EMBEDDINGS", "USE_ENDPOINT_EMBEDDINGS", "EMBEDDING_ENDPOINT_URL", "EMBEDDING_ENDPOINT_TIMEOUT",
		"LOCAL_MODEL_NAME", "LOCAL_MODEL_CACHE_DIR", "DATABASE_URL",
	}
}

// LoadConfig loads defaults, then the TOML file, then the environment.
// HARDGATE_ variables override everything; a double underscore separates
// key levels (HARDGATE_LLM__MAX_TOKENS sets llm.max_tokens).
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" && configPath != DefaultFile {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./" + DefaultFile, "$HOME/.hardgate.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	if err := k.Load(env.Provider("HARDGATE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "HARDGATE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig writes a sample configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# hardgate configuration

output_dir = "./analysis_output"

[llm]
max_tokens = 8000
temperature = 0.1
cache_file = "llm_cache.json"

[llm.openai]
# api_key = "sk-..."
# base_url = "http://localhost:1234/v1"
model = "gpt-4o"

[llm.anthropic]
# api_key = ""
model = "claude-3-sonnet-20240229"

[llm.google]
# api_key = ""
model = "gemini-pro"

[crawl]
max_file_size = 100000
clone_timeout = "300s"

[index]
enabled = true
backend = "file" # file, chroma or postgres
persist_dir = "./chroma_db"
analysis_collection = "analysis_reports"
ocp_collection = "ocp_assessment_reports"

[embedding]
use_local = false
use_endpoint = false
endpoint_url = "http://localhost:1234"
endpoint_timeout = 30
fallback_dim = 384

[jira]
# url = "https://example.atlassian.net"
project_key = "XYZ"
max_results = 10

[server]
port = 8000
queue = "memory" # memory or river
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Error marks a configuration problem. The CLI exits with a distinct code for it.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validate checks values that would otherwise fail deep inside a run
func Validate(config *Config) error {
	if config.OutputDir == "" {
		return &Error{Field: "output_dir", Msg: "output directory is required"}
	}
	if config.LLM.MaxTokens <= 0 {
		return &Error{Field: "llm.max_tokens", Msg: "must be positive"}
	}
	if config.Crawl.MaxFileSize <= 0 {
		return &Error{Field: "crawl.max_file_size", Msg: "must be positive"}
	}
	if config.Embedding.FallbackDim <= 0 {
		return &Error{Field: "embedding.fallback_dim", Msg: "must be positive"}
	}

	switch config.Index.Backend {
	case "file", "chroma":
	case "postgres":
		if config.DatabaseURL == "" {
			return &Error{Field: "database_url", Msg: "required by the postgres index backend"}
		}
	default:
		return &Error{Field: "index.backend", Msg: fmt.Sprintf("unsupported backend %q", config.Index.Backend)}
	}

	switch config.Server.Queue {
	case "memory":
	case "river":
		if config.DatabaseURL == "" {
			return &Error{Field: "database_url", Msg: "required by the river queue"}
		}
	default:
		return &Error{Field: "server.queue", Msg: fmt.Sprintf("unsupported queue %q", config.Server.Queue)}
	}

	return nil
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smartnotes/core/internal/pkg/apperror"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Timezone       string                `yaml:"timezone"`
	Paths          RuntimePathsConfig    `yaml:"paths"`
	LLM            LLMConfig             `yaml:"llm"`
	Captions       CaptionsConfig        `yaml:"captions"`
	SpeechToText   SpeechToTextConfig    `yaml:"speech_to_text"`
	Journal        JournalConfig         `yaml:"journal"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	S3             S3RuntimeConfig       `yaml:"s3"`
	Pipeline       PipelineConfig        `yaml:"pipeline"`
}

type RuntimePathsConfig struct {
	Logs        string `yaml:"logs"`
	Transcripts string `yaml:"transcripts"`
	Temp        string `yaml:"temp"`
}

// LLMConfig selects the generative provider used for notes.
type LLMConfig struct {
	Provider       string  `yaml:"provider"` // openai-compatible | openai | anthropic
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	PromptTemplate string  `yaml:"prompt_template"`
	PromptFile     string  `yaml:"prompt_file"`
}

type CaptionsConfig struct {
	WatchURL       string `yaml:"watch_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SpeechToTextConfig points at a whisper-compatible transcription server.
type SpeechToTextConfig struct {
	Enable         bool   `yaml:"enable"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	YtdlpPath      string `yaml:"ytdlp_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type JournalConfig struct {
	ProcessingLog string `yaml:"processing_log"`
	DiscussionLog string `yaml:"discussion_log"`
}

type DatabaseRuntimeConfig struct {
	Enable    bool              `yaml:"enable"`
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	Enable   bool              `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

type S3RuntimeConfig struct {
	Enable            bool   `yaml:"enable"`
	Bucket            string `yaml:"bucket"`
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	AccessKeyID       string `yaml:"access_key_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	PathStyle         bool   `yaml:"path_style"`
	Prefix            string `yaml:"prefix"`
	PresignTTLMinutes int    `yaml:"presign_ttl_minutes"`
}

type PipelineConfig struct {
	TimeoutSeconds     int `yaml:"timeout_seconds"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type rawAppConfig struct {
	Port           int                `yaml:"port"`
	Env            string             `yaml:"env"`
	AllowedOrigins []string           `yaml:"allowed_origins"`
	Timezone       string             `yaml:"timezone"`
	Paths          RuntimePathsConfig `yaml:"paths"`
	LogDir         string             `yaml:"log_dir"`
	LLM            rawLLMConfig       `yaml:"llm"`
	Captions       CaptionsConfig     `yaml:"captions"`
	SpeechToText   rawSTTConfig       `yaml:"speech_to_text"`
	Journal        JournalConfig      `yaml:"journal"`
	Database       rawDatabaseConfig  `yaml:"database"`
	Redis          rawRedisConfig     `yaml:"redis"`
	S3             rawS3Config        `yaml:"s3"`
	Pipeline       rawPipelineConfig  `yaml:"pipeline"`
}

type rawLLMConfig struct {
	Provider       string   `yaml:"provider"`
	Endpoint       string   `yaml:"endpoint"`
	APIKey         string   `yaml:"api_key"`
	Model          string   `yaml:"model"`
	Temperature    *float64 `yaml:"temperature"`
	MaxTokens      int      `yaml:"max_tokens"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	PromptTemplate string   `yaml:"prompt_template"`
	PromptFile     string   `yaml:"prompt_file"`
}

type rawSTTConfig struct {
	Enable         *bool  `yaml:"enable"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	YtdlpPath      string `yaml:"ytdlp_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type rawDatabaseConfig struct {
	Enable    *bool             `yaml:"enable"`
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	Enable   *bool             `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

type rawS3Config struct {
	Enable            *bool  `yaml:"enable"`
	Bucket            string `yaml:"bucket"`
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	AccessKeyID       string `yaml:"access_key_id"`
	SecretAccessKey   string `yaml:"secret_access_key"`
	PathStyle         *bool  `yaml:"path_style"`
	Prefix            string `yaml:"prefix"`
	PresignTTLMinutes int    `yaml:"presign_ttl_minutes"`
}

type rawPipelineConfig struct {
	TimeoutSeconds     int  `yaml:"timeout_seconds"`
	RateLimitPerMinute *int `yaml:"rate_limit_per_minute"`
}

// Load reads the YAML file at configPath. A missing file is not an error when
// configPath is empty: the defaults plus env overrides are used instead.
func Load(configPath string) (*AppConfig, error) {
	return load(configPath, os.Getenv)
}

func load(configPath string, getenv func(string) string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		raw := rawAppConfig{}
		if err := decoder.Decode(&raw); err != nil && !isEmptyDocument(err) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
		applyRawAppConfig(&cfg, raw)
	case explicit || !os.IsNotExist(err):
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg, getenv)
	if err := loadPromptFile(&cfg, path); err != nil {
		return nil, err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d in %q, expected 1-65535", cfg.Port, path)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return nil, fmt.Errorf("invalid database.port %d in %q, expected 1-65535", cfg.Database.Port, path)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return nil, fmt.Errorf("invalid redis.port %d in %q, expected 1-65535", cfg.Redis.Port, path)
	}
	if cfg.Redis.DB < 0 {
		return nil, fmt.Errorf("invalid redis.db %d in %q, expected >= 0", cfg.Redis.DB, path)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return nil, fmt.Errorf("invalid llm.temperature %v in %q, expected 0-2", cfg.LLM.Temperature, path)
	}

	return &cfg, nil
}

// isEmptyDocument reports the io.EOF yaml.v3 returns for an empty file.
func isEmptyDocument(err error) bool {
	return errors.Is(err, io.EOF)
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		LLM: LLMConfig{
			Provider:       defaultLLMProvider,
			Temperature:    defaultLLMTemperature,
			MaxTokens:      defaultLLMMaxTokens,
			TimeoutSeconds: defaultLLMTimeoutSec,
		},
		Captions: CaptionsConfig{
			WatchURL:       defaultCaptionsWatchURL,
			TimeoutSeconds: defaultCaptionsTimeoutSec,
		},
		SpeechToText: SpeechToTextConfig{
			Enable:         true,
			Endpoint:       defaultSTTEndpoint,
			Model:          defaultSTTModel,
			YtdlpPath:      defaultSTTYtdlpPath,
			TimeoutSeconds: defaultSTTTimeoutSec,
		},
		Journal: JournalConfig{
			ProcessingLog: defaultProcessingLog,
			DiscussionLog: defaultDiscussionLog,
		},
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		S3: S3RuntimeConfig{
			Region:            defaultS3Region,
			Prefix:            defaultS3Prefix,
			PresignTTLMinutes: defaultS3PresignTTLMin,
		},
		Pipeline: PipelineConfig{
			TimeoutSeconds:     defaultPipelineTimeoutSec,
			RateLimitPerMinute: defaultRateLimitPerMinute,
		},
	}
	cfg.LLM = normalizeLLMConfig(cfg.LLM)
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if len(raw.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = raw.AllowedOrigins
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Transcripts); v != "" {
		cfg.Paths.Transcripts = v
	}
	if v := strings.TrimSpace(raw.Paths.Temp); v != "" {
		cfg.Paths.Temp = v
	}

	cfg.LLM = applyRawLLMConfig(cfg.LLM, raw.LLM)
	cfg.SpeechToText = applyRawSTTConfig(cfg.SpeechToText, raw.SpeechToText)

	if v := strings.TrimSpace(raw.Captions.WatchURL); v != "" {
		cfg.Captions.WatchURL = v
	}
	if raw.Captions.TimeoutSeconds > 0 {
		cfg.Captions.TimeoutSeconds = raw.Captions.TimeoutSeconds
	}
	if v := strings.TrimSpace(raw.Journal.ProcessingLog); v != "" {
		cfg.Journal.ProcessingLog = v
	}
	if v := strings.TrimSpace(raw.Journal.DiscussionLog); v != "" {
		cfg.Journal.DiscussionLog = v
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw.Database)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw.Redis)
	cfg.S3 = applyRawS3Config(cfg.S3, raw.S3)

	if raw.Pipeline.TimeoutSeconds > 0 {
		cfg.Pipeline.TimeoutSeconds = raw.Pipeline.TimeoutSeconds
	}
	if raw.Pipeline.RateLimitPerMinute != nil {
		cfg.Pipeline.RateLimitPerMinute = *raw.Pipeline.RateLimitPerMinute
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.AllowedOrigins = normalizeOrigins(cfg.AllowedOrigins)
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
}

func applyRawLLMConfig(current LLMConfig, raw rawLLMConfig) LLMConfig {
	if v := strings.TrimSpace(raw.Provider); v != "" {
		current.Provider = v
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		current.Endpoint = v
	}
	if v := strings.TrimSpace(raw.APIKey); v != "" {
		current.APIKey = v
	}
	if v := strings.TrimSpace(raw.Model); v != "" {
		current.Model = v
	}
	if raw.Temperature != nil {
		current.Temperature = *raw.Temperature
	}
	if raw.MaxTokens > 0 {
		current.MaxTokens = raw.MaxTokens
	}
	if raw.TimeoutSeconds > 0 {
		current.TimeoutSeconds = raw.TimeoutSeconds
	}
	if strings.TrimSpace(raw.PromptTemplate) != "" {
		current.PromptTemplate = raw.PromptTemplate
	}
	if v := strings.TrimSpace(raw.PromptFile); v != "" {
		current.PromptFile = v
	}
	return normalizeLLMConfig(current)
}

func applyRawSTTConfig(current SpeechToTextConfig, raw rawSTTConfig) SpeechToTextConfig {
	if raw.Enable != nil {
		current.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		current.Endpoint = v
	}
	if v := strings.TrimSpace(raw.APIKey); v != "" {
		current.APIKey = v
	}
	if v := strings.TrimSpace(raw.Model); v != "" {
		current.Model = v
	}
	if v := strings.TrimSpace(raw.YtdlpPath); v != "" {
		current.YtdlpPath = v
	}
	if raw.TimeoutSeconds > 0 {
		current.TimeoutSeconds = raw.TimeoutSeconds
	}
	return current
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawDatabaseConfig) DatabaseRuntimeConfig {
	if raw.Enable != nil {
		current.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		current.DSN = v
	}
	if v := strings.TrimSpace(raw.URL); v != "" && current.DSN == "" {
		current.DSN = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		current.Host = v
	}
	if raw.Port != 0 {
		current.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.User); v != "" {
		current.User = v
	} else if v := strings.TrimSpace(raw.Username); v != "" {
		current.User = v
	}
	if raw.Password != "" {
		current.Password = raw.Password
	}
	if v := strings.TrimSpace(raw.Name); v != "" {
		current.Name = v
	} else if v := strings.TrimSpace(raw.DBName); v != "" {
		current.Name = v
	}
	if v := strings.TrimSpace(raw.Charset); v != "" {
		current.Charset = v
	}
	if raw.ParseTime != nil {
		current.ParseTime = *raw.ParseTime
	}
	if v := strings.TrimSpace(raw.Loc); v != "" {
		current.Loc = v
	}
	if raw.Params != nil {
		current.Params = raw.Params
	}
	return normalizeDatabaseConfig(current)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawRedisConfig) RedisRuntimeConfig {
	if raw.Enable != nil {
		current.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.URL); v != "" {
		current.URL = v
	}
	if v := strings.TrimSpace(raw.Host); v != "" {
		current.Host = v
	}
	if raw.Port != 0 {
		current.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Username); v != "" {
		current.Username = v
	}
	if raw.Password != "" {
		current.Password = raw.Password
	}
	if raw.DB != nil {
		current.DB = *raw.DB
	}
	if raw.TLS != nil {
		current.TLS = *raw.TLS
	}
	if raw.Params != nil {
		current.Params = raw.Params
	}
	return normalizeRedisConfig(current)
}

func applyRawS3Config(current S3RuntimeConfig, raw rawS3Config) S3RuntimeConfig {
	if raw.Enable != nil {
		current.Enable = *raw.Enable
	}
	if v := strings.TrimSpace(raw.Bucket); v != "" {
		current.Bucket = v
	}
	if v := strings.TrimSpace(raw.Region); v != "" {
		current.Region = v
	}
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		current.Endpoint = v
	}
	if v := strings.TrimSpace(raw.AccessKeyID); v != "" {
		current.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.SecretAccessKey); v != "" {
		current.SecretAccessKey = v
	}
	if raw.PathStyle != nil {
		current.PathStyle = *raw.PathStyle
	}
	if raw.Prefix != "" {
		current.Prefix = strings.Trim(strings.TrimSpace(raw.Prefix), "/")
	}
	if raw.PresignTTLMinutes > 0 {
		current.PresignTTLMinutes = raw.PresignTTLMinutes
	}
	return current
}

// applyEnvOverrides lets credentials come from the environment (or .env) so
// they never have to live in config.yml.
func applyEnvOverrides(cfg *AppConfig, getenv func(string) string) {
	if getenv == nil {
		return
	}
	providerKey := EnvGroqAPIKey
	switch cfg.LLM.Provider {
	case ProviderOpenAI:
		providerKey = EnvOpenAIAPIKey
	case ProviderAnthropic:
		providerKey = EnvAnthropicAPIKey
	}
	for _, name := range []string{EnvLLMAPIKey, providerKey} {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			cfg.LLM.APIKey = v
			break
		}
	}
	if v := strings.TrimSpace(getenv(EnvSTTAPIKey)); v != "" {
		cfg.SpeechToText.APIKey = v
	}
}

func loadPromptFile(cfg *AppConfig, configPath string) error {
	file := cfg.LLM.PromptFile
	if file == "" {
		return nil
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(configPath), file)
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read llm.prompt_file %q: %w", file, err)
	}
	cfg.LLM.PromptTemplate = string(content)
	return nil
}

// Validate checks what must hold before the server opens any connection.
func (c *AppConfig) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAICompatible, ProviderOpenAI, ProviderAnthropic:
	default:
		return apperror.Configuration(fmt.Sprintf("unsupported llm.provider %q", c.LLM.Provider))
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return apperror.Configuration(fmt.Sprintf("%s is missing: set llm.api_key or the %s environment variable",
			c.credentialName(), c.credentialName()))
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return apperror.Configuration("llm.model is empty")
	}
	if c.LLM.PromptTemplate != "" && !strings.Contains(c.LLM.PromptTemplate, "{transcript}") {
		return apperror.Configuration("llm prompt template has no {transcript} placeholder")
	}
	if c.S3.Enable && c.S3.Bucket == "" {
		return apperror.Configuration("s3.bucket is required when s3.enable is true")
	}
	return nil
}

func (c *AppConfig) credentialName() string {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	}
	return EnvGroqAPIKey
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

func (c *AppConfig) LogDir() string {
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

func (c *AppConfig) TranscriptDir() string {
	return ResolveRuntimePath(c.Paths.Transcripts, "transcripts")
}

func (c *AppConfig) TempDir() string {
	if c.Paths.Temp == "" {
		return filepath.Join(os.TempDir(), "smartnotes")
	}
	return ResolveRuntimePath(c.Paths.Temp, "tmp")
}

// ProcessingLogPath resolves the processing log against the log directory.
func (c *AppConfig) ProcessingLogPath() string {
	return resolveUnder(c.LogDir(), c.Journal.ProcessingLog)
}

func (c *AppConfig) DiscussionLogPath() string {
	return resolveUnder(c.LogDir(), c.Journal.DiscussionLog)
}

func resolveUnder(dir, name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

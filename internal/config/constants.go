package config

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort = 8501
	defaultEnv  = "development"

	defaultLLMProvider    = "openai-compatible"
	defaultLLMEndpoint    = "https://api.groq.com/openai"
	defaultLLMModel       = "llama3-70b-8192"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultLLMTemperature = 0.3
	defaultLLMMaxTokens   = 4000
	defaultLLMTimeoutSec  = 120

	defaultCaptionsWatchURL   = "https://www.youtube.com/watch"
	defaultCaptionsTimeoutSec = 30

	defaultSTTEndpoint   = "http://127.0.0.1:8000/v1"
	defaultSTTModel      = "base"
	defaultSTTYtdlpPath  = "yt-dlp"
	defaultSTTTimeoutSec = 600

	defaultProcessingLog = "processing.log"
	defaultDiscussionLog = "discussion.log"

	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "smartnotes"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"

	defaultRedisHost = "localhost"
	defaultRedisPort = 6379
	defaultRedisDB   = 0

	defaultS3Region        = "us-east-1"
	defaultS3Prefix        = "smartnotes"
	defaultS3PresignTTLMin = 60

	defaultPipelineTimeoutSec = 900
	defaultRateLimitPerMinute = 10
)

// Env var names consulted after the YAML file is applied.
const (
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvLLMAPIKey       = "LLM_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvSTTAPIKey       = "STT_API_KEY"
)

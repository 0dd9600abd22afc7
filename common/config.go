package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ServerModeWeb 浏览器前端
	ServerModeWeb = "web"
	// ServerModeMCP stdio MCP 服务
	ServerModeMCP = "mcp"

	// DefaultEditModelName 图生图（编辑 / 合成）默认模型
	DefaultEditModelName = "gemini-2.5-flash-image"
	// DefaultGenModelName 文生图默认模型
	DefaultGenModelName = "imagen-4.0-generate-001"

	defaultSessionSecret = "genai-studio-insecure-session-secret"
)

// Config 应用配置结构
type Config struct {
	// GenAI 配置
	GenAIBaseURL string
	GenAIAPIKey  string
	// 分别用于图片生成与图片编辑的模型名称
	GenAIGenModelName  string
	GenAIEditModelName string
	// 图片输出格式: base64 或 url（url 时额外上传到 OSS）
	GenAIImageFormat string
	// GenAI 请求超时时间（秒），0 表示不设置超时
	GenAITimeoutSeconds int

	// 服务配置
	ServerMode         string // web 或 mcp
	ServerAddress      string
	ServerPort         string
	SessionSecret      string
	SessionIdleMinutes int
	SessionSecure      bool // HTTPS 部署时为会话 cookie 设置 Secure
	MaxUploadMB        int

	// OSS 配置
	OSSEndpoint  string
	OSSRegion    string
	OSSAccessKey string
	OSSSecretKey string
	OSSBucket    string

	// 日志配置
	LogLevel  string // 日志级别: debug, info, warn, error
	LogFormat string // 日志格式: json, text
	LogOutput string // 输出位置: stdout, stderr, file
	LogFile   string // 日志文件路径（当 LogOutput 为 file 时）
}

// LoadConfig 从 .env 文件和环境变量加载配置，并初始化日志系统
func LoadConfig() (*Config, error) {
	// 加载 .env 文件（如果存在）
	if err := godotenv.Load(); err != nil {
		// stdout 在 MCP 模式下是协议通道，提示只能写到 stderr
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	config := FromEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// 初始化日志系统
	logConfig := &LogConfig{
		Level:    config.LogLevel,
		Format:   config.LogFormat,
		Output:   config.LogOutput,
		FilePath: config.LogFile,
	}
	if err := InitLogger(logConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return config, nil
}

// FromEnv 仅从环境变量构建配置，不做校验
func FromEnv() *Config {
	return &Config{
		GenAIBaseURL: getEnv("GENAI_BASE_URL", ""),
		// 兼容只提供 API_KEY 的部署方式
		GenAIAPIKey:         getEnv("GENAI_API_KEY", getEnv("API_KEY", "")),
		GenAIGenModelName:   getEnv("GENAI_GEN_MODEL_NAME", DefaultGenModelName),
		GenAIEditModelName:  getEnv("GENAI_EDIT_MODEL_NAME", DefaultEditModelName),
		GenAIImageFormat:    strings.ToLower(getEnv("GENAI_IMAGE_FORMAT", "base64")),
		GenAITimeoutSeconds: getEnvInt("GENAI_TIMEOUT_SECONDS", 0),
		ServerMode:          strings.ToLower(getEnv("SERVER_MODE", ServerModeWeb)),
		ServerAddress:       getEnv("SERVER_ADDRESS", "0.0.0.0"),
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		SessionSecret:       getEnv("SESSION_SECRET", defaultSessionSecret),
		SessionIdleMinutes:  getEnvInt("SESSION_IDLE_MINUTES", 60),
		SessionSecure:       getEnvBool("SESSION_SECURE_COOKIE", false),
		MaxUploadMB:         getEnvInt("MAX_UPLOAD_MB", 20),
		// OSS 配置
		OSSEndpoint:  getEnv("OSS_ENDPOINT", ""),
		OSSRegion:    getEnv("OSS_REGION", "us-east-1"),
		OSSAccessKey: getEnv("OSS_ACCESS_KEY", ""),
		OSSSecretKey: getEnv("OSS_SECRET_KEY", ""),
		OSSBucket:    getEnv("OSS_BUCKET", ""),
		// 日志配置
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
		LogFile:   getEnv("LOG_FILE", ""),
	}
}

// Validate 校验必需的配置项，并修正与运行模式冲突的取值
func (c *Config) Validate() error {
	if c.GenAIAPIKey == "" {
		return fmt.Errorf("GENAI_API_KEY is required")
	}

	switch c.ServerMode {
	case ServerModeWeb:
	case ServerModeMCP:
		// stdio 服务独占 stdout
		if strings.EqualFold(c.LogOutput, "stdout") {
			c.LogOutput = "stderr"
		}
	default:
		return fmt.Errorf("unsupported SERVER_MODE: %s", c.ServerMode)
	}

	switch c.GenAIImageFormat {
	case "base64":
	case "url":
		if c.OSSBucket == "" {
			return fmt.Errorf("OSS_BUCKET is required when GENAI_IMAGE_FORMAT=url")
		}
	default:
		return fmt.Errorf("unsupported GENAI_IMAGE_FORMAT: %s", c.GenAIImageFormat)
	}

	if c.GenAITimeoutSeconds < 0 {
		return fmt.Errorf("GENAI_TIMEOUT_SECONDS must not be negative")
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 20
	}
	if c.SessionIdleMinutes <= 0 {
		c.SessionIdleMinutes = 60
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

// getEnvBool 获取布尔型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

// GetServerAddr 返回完整的服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerAddress, c.ServerPort)
}

// PublishEnabled 是否需要把生成结果上传到 OSS
func (c *Config) PublishEnabled() bool {
	return c.GenAIImageFormat == "url"
}

// GenAITimeout 单次请求超时时间，0 表示不限制
func (c *Config) GenAITimeout() time.Duration {
	return time.Duration(c.GenAITimeoutSeconds) * time.Second
}

// SessionIdle 浏览器会话的最长空闲时间
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// InsecureSessionSecret 是否仍在使用默认的会话密钥
func (c *Config) InsecureSessionSecret() bool {
	return c.SessionSecret == defaultSessionSecret
}

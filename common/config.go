package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构
type Config struct {
	// 各类推理任务服务的端点（模型生成 / 蒙版生成 / 试穿）
	ModelGeneratorEndpoint string
	MaskingEndpoint        string
	TryonEndpoint          string

	// 任务请求超时时间（秒）与重试次数
	JobTimeoutSeconds int
	JobRetries        int
	// 工作流整体超时时间（秒）
	FlowTimeoutSeconds int

	// OSS 配置
	OSSEndpoint  string
	OSSRegion    string
	OSSAccessKey string
	OSSSecretKey string

	// 可选：YAML 端点配置文件路径（覆盖上面的端点环境变量）
	ConfigPath string

	// 日志配置
	LogLevel  string // 日志级别: debug, info, warn, error
	LogFormat string // 日志格式: json, text
	LogOutput string // 输出位置: stdout, stderr, file
	LogFile   string // 日志文件路径（当 LogOutput 为 file 时）
}

// endpointsFile YAML 端点配置文件结构，例如：
//
//	endpoints:
//	  model_generator: http://10.0.0.1:8000
//	  masking: http://10.0.0.2:8000
//	  tryon: http://10.0.0.3:8000
type endpointsFile struct {
	Endpoints struct {
		ModelGenerator string `yaml:"model_generator"`
		Masking        string `yaml:"masking"`
		Tryon          string `yaml:"tryon"`
	} `yaml:"endpoints"`
}

// LoadConfig 从 .env 文件加载配置
func LoadConfig() (*Config, error) {
	// 加载 .env 文件（如果存在）
	if err := godotenv.Load(); err != nil {
		// .env 文件不存在时，尝试从环境变量读取
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	config := &Config{
		ModelGeneratorEndpoint: getEnv("TRYON_MODEL_GENERATOR_ENDPOINT", ""),
		MaskingEndpoint:        getEnv("TRYON_MASKING_ENDPOINT", ""),
		TryonEndpoint:          getEnv("TRYON_TRYON_ENDPOINT", ""),
		JobTimeoutSeconds:      getEnvInt("TRYON_JOB_TIMEOUT_SECONDS", 600),
		JobRetries:             getEnvInt("TRYON_JOB_RETRIES", 3),
		FlowTimeoutSeconds:     getEnvInt("TRYON_FLOW_TIMEOUT_SECONDS", 300),
		// OSS 配置
		OSSEndpoint:  getEnv("OSS_ENDPOINT", ""),
		OSSRegion:    getEnv("OSS_REGION", "us-east-1"),
		OSSAccessKey: getEnv("OSS_ACCESS_KEY", ""),
		OSSSecretKey: getEnv("OSS_SECRET_KEY", ""),
		ConfigPath:   getEnv("TRYON_CONFIG_PATH", ""),
		// 日志配置
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogOutput: getEnv("LOG_OUTPUT", "stdout"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	// 如果指定了 YAML 配置文件，用文件中的端点覆盖环境变量
	if config.ConfigPath != "" {
		if err := config.ApplyEndpointsFile(config.ConfigPath); err != nil {
			return nil, fmt.Errorf("failed to load endpoints file: %w", err)
		}
	}

	// 校验必需的端点配置
	if err := config.ValidateEndpoints(); err != nil {
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

// ApplyEndpointsFile 读取 YAML 端点配置文件，非空字段覆盖当前配置
func (c *Config) ApplyEndpointsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f endpointsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if f.Endpoints.ModelGenerator != "" {
		c.ModelGeneratorEndpoint = f.Endpoints.ModelGenerator
	}
	if f.Endpoints.Masking != "" {
		c.MaskingEndpoint = f.Endpoints.Masking
	}
	if f.Endpoints.Tryon != "" {
		c.TryonEndpoint = f.Endpoints.Tryon
	}
	return nil
}

// ValidateEndpoints 校验三个任务端点均已配置
func (c *Config) ValidateEndpoints() error {
	if c.ModelGeneratorEndpoint == "" {
		return fmt.Errorf("TRYON_MODEL_GENERATOR_ENDPOINT is required")
	}
	if c.MaskingEndpoint == "" {
		return fmt.Errorf("TRYON_MASKING_ENDPOINT is required")
	}
	if c.TryonEndpoint == "" {
		return fmt.Errorf("TRYON_TRYON_ENDPOINT is required")
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

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes" || value == "on"
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

// GetOSSConfig 返回 OSS 配置，用于创建 OSS 客户端
func (c *Config) GetOSSConfig() map[string]string {
	return map[string]string{
		"endpoint":  c.OSSEndpoint,
		"region":    c.OSSRegion,
		"accessKey": c.OSSAccessKey,
		"secretKey": c.OSSSecretKey,
	}
}

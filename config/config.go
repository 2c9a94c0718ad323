package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Input         InputConfig         `mapstructure:"input"`
	Output        OutputConfig        `mapstructure:"output"`
	Log           LogConfig           `mapstructure:"log"`
	Embed         EmbedConfig         `mapstructure:"embed"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Refine        RefineConfig        `mapstructure:"refine"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	PythonService PythonServiceConfig `mapstructure:"python_service"`
}

// InputConfig 输入目录配置
type InputConfig struct {
	Dir          string `mapstructure:"dir"`           // 输入目录，可被INPUT_DIR覆盖
	ConfigGlob   string `mapstructure:"config_glob"`   // 运行配置文件匹配模式
	DocumentGlob string `mapstructure:"document_glob"` // PDF匹配模式
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir      string `mapstructure:"dir"`       // 输出目录，可被OUTPUT_DIR覆盖
	FileName string `mapstructure:"file_name"` // 输出文件名
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`        // 日志级别
	Format     string `mapstructure:"format"`       // text 或 json
	File       string `mapstructure:"file"`         // 日志文件路径，为空时只输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧日志数量
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧日志保留天数
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`   // 提供商：python, tongyi, openai
	Model      string        `mapstructure:"model"`      // 模型名称
	APIKey     string        `mapstructure:"api_key"`    // API密钥（如果需要）
	Endpoint   string        `mapstructure:"endpoint"`   // API端点
	BatchSize  int           `mapstructure:"batch_size"` // 批处理大小
	Dimensions int           `mapstructure:"dimensions"` // 向量维度
	Normalize  bool          `mapstructure:"normalize"`  // 是否归一化
	Timeout    time.Duration `mapstructure:"timeout"`    // 请求超时
	MaxRetries int           `mapstructure:"max_retries"`
}

// LLMConfig 生成模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`    // 提供商：python, tongyi
	Model       string        `mapstructure:"model"`       // 模型名称
	APIKey      string        `mapstructure:"api_key"`     // API密钥
	Endpoint    string        `mapstructure:"endpoint"`    // API端点
	MaxTokens   int           `mapstructure:"max_tokens"`  // 最大生成token数量
	Temperature float32       `mapstructure:"temperature"` // 采样温度
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RefineConfig 段落精炼配置
type RefineConfig struct {
	Enable bool   `mapstructure:"enable"` // 是否用生成模型改写段落
	Mode   string `mapstructure:"mode"`   // refine 或 summarize
}

// PipelineConfig 排序与聚合参数
type PipelineConfig struct {
	TopSections       int     `mapstructure:"top_sections"`        // 输出章节数上限
	SubsectionWindow  int     `mapstructure:"subsection_window"`   // 提取段落的章节窗口
	MinParagraphWords int     `mapstructure:"min_paragraph_words"` // 段落最少词数
	LineTolerance     float64 `mapstructure:"line_tolerance"`      // 同行判定容差
	BlockGapRatio     float64 `mapstructure:"block_gap_ratio"`     // 分块判定行距比例
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`    // 是否启用缓存
	Type     string `mapstructure:"type"`      // 缓存类型：memory, redis, bolt
	Address  string `mapstructure:"address"`   // Redis地址
	Password string `mapstructure:"password"`  // Redis密码
	DB       int    `mapstructure:"db"`        // Redis数据库
	Prefix   string `mapstructure:"prefix"`    // 键前缀
	BoltPath string `mapstructure:"bolt_path"` // bbolt文件路径
	TTL      int    `mapstructure:"ttl"`       // 缓存TTL（秒）
}

// StorageConfig 结果存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enable bool   `mapstructure:"enable"` // 批处理模式下是否记录运行历史
	Type   string `mapstructure:"type"`   // 数据库类型: sqlite
	DSN    string `mapstructure:"dsn"`    // 数据源名称
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host          string `mapstructure:"host"`            // 服务器主机
	Port          int    `mapstructure:"port"`            // 服务器端口
	UploadDir     string `mapstructure:"upload_dir"`      // 上传文件的临时目录
	MaxUploadSize int64  `mapstructure:"max_upload_size"` // 上传大小上限（字节）
}

// PythonServiceConfig Python模型服务配置
type PythonServiceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`    // Python服务基础URL
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时时间
	MaxRetries int           `mapstructure:"max_retries"` // 最大重试次数
	RetryDelay time.Duration `mapstructure:"retry_delay"` // 重试间隔
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时使用默认值
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	setDefaults(v)

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// 支持环境变量覆盖，例如EMBED_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("input.dir", "INPUT_DIR")
	_ = v.BindEnv("output.dir", "OUTPUT_DIR")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	processEnvironmentVariables(&config)
	return &config, nil
}

// UsedFile 返回实际读取的配置文件，不存在时为空
func UsedFile(configPath string) string {
	if _, err := os.Stat(configPath); err != nil {
		return ""
	}
	return configPath
}

// processEnvironmentVariables 展开密钥类配置中的${VAR}
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.LLM.APIKey,
		&cfg.Cache.Password,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 值形如${VAR}且环境变量非空时替换
func expandEnv(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 输入输出
	v.SetDefault("input.dir", "input")
	v.SetDefault("input.config_glob", "*.json")
	v.SetDefault("input.document_glob", "*.pdf")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.file_name", "output.json")

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)

	// Embedding默认配置
	v.SetDefault("embed.provider", "python")
	v.SetDefault("embed.model", "all-MiniLM-L12-v2")
	v.SetDefault("embed.api_key", "")
	v.SetDefault("embed.endpoint", "")
	v.SetDefault("embed.batch_size", 32)
	v.SetDefault("embed.dimensions", 0)
	v.SetDefault("embed.normalize", true)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 3)

	// 生成模型默认配置
	v.SetDefault("llm.provider", "python")
	v.SetDefault("llm.model", "t5-small")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("refine.enable", false)
	v.SetDefault("refine.mode", "refine")

	// 排序与聚合
	v.SetDefault("pipeline.top_sections", 5)
	v.SetDefault("pipeline.subsection_window", 10)
	v.SetDefault("pipeline.min_paragraph_words", 8)
	v.SetDefault("pipeline.line_tolerance", 0.5)
	v.SetDefault("pipeline.block_gap_ratio", 1.6)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", "persona")
	v.SetDefault("cache.bolt_path", "data/embeddings.db")
	v.SetDefault("cache.ttl", 86400)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "data/analyses")
	v.SetDefault("storage.bucket", "persona-analyses")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)

	// 数据库默认配置
	v.SetDefault("database.enable", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/analyzer.db")

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.upload_dir", "data/uploads")
	v.SetDefault("server.max_upload_size", 64<<20)

	// Python服务默认配置
	v.SetDefault("python_service.base_url", "http://localhost:8000/api")
	v.SetDefault("python_service.timeout", "30s")
	v.SetDefault("python_service.max_retries", 3)
	v.SetDefault("python_service.retry_delay", "1s")
}

var validate = validator.New()

// LoadRunConfig 读取并校验输入目录中的运行配置
func LoadRunConfig(path string) (*models.RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read run config: %w", err)
	}
	return ParseRunConfig(data)
}

// ParseRunConfig 解析并校验运行配置
func ParseRunConfig(data []byte) (*models.RunConfig, error) {
	var rc models.RunConfig
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRunConfig, err)
	}
	if err := validate.Struct(&rc); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRunConfig, err)
	}
	return &rc, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig        `mapstructure:"ai"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig 聊天入口的滑动窗口限流参数（按客户端标识计数）
type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type AIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	RewriteModel   string `mapstructure:"rewrite_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	TimeoutMinutes int    `mapstructure:"timeout_minutes"`

	// Timeout 由 TimeoutMinutes 换算，LoadConfig 填充
	Timeout time.Duration `mapstructure:"-"`
}

type VectorConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
	TopK       int    `mapstructure:"top_k"`
}

// CorpusConfig 站点级语料配置：可用的集合标签、纳入检索的库、
// 精选集合限定的作者白名单
type CorpusConfig struct {
	Collections       []string `mapstructure:"collections"`
	IncludedLibraries []string `mapstructure:"included_libraries"`
	CuratedTag        string   `mapstructure:"curated_tag"`
	CuratedAuthors    []string `mapstructure:"curated_authors"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// chatTimeout 整条问答流水线的硬超时上限，配置缺失或非法时取3分钟
func chatTimeout(minutes int) time.Duration {
	if minutes <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(minutes) * time.Minute
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("CORPUS_QA")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")
	viper.BindEnv("ai.rewrite_model", "AI_REWRITE_MODEL")
	viper.BindEnv("ai.embedding_model", "AI_EMBEDDING_MODEL")

	// Vector store
	viper.BindEnv("vector.url", "VECTOR_URL")
	viper.BindEnv("vector.api_key", "VECTOR_API_KEY")
	viper.BindEnv("vector.collection", "VECTOR_COLLECTION")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.AI.Timeout = chatTimeout(cfg.AI.TimeoutMinutes)
	if cfg.Vector.TopK <= 0 {
		cfg.Vector.TopK = 4
	}
	if cfg.Vector.TopK > 6 {
		cfg.Vector.TopK = 6 // 限制上下文规模，控制生成延迟
	}
	if cfg.Corpus.CuratedTag == "" {
		cfg.Corpus.CuratedTag = "curated"
	}
	if len(cfg.Corpus.Collections) == 0 {
		cfg.Corpus.Collections = []string{"whole-corpus", cfg.Corpus.CuratedTag}
	}

	if cfg.Server.Mode == "release" && cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("ai.api_key must be set in release mode")
	}

	return &cfg, nil
}

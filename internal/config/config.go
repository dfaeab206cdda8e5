// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
}

// ServerConfig 存储 HTTP 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储租户会话令牌相关的配置。
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储索引队列相关的配置。
// Brokers 为空表示该部署没有持久化队列，索引任务改为同步入库。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储向量检索后端相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储上传文件对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// QuotaConfig 存储每租户限流相关的配置。
// FailClosed 控制计数后端不可用时的策略：默认 false，即放行（fail-open）。
type QuotaConfig struct {
	WindowSeconds int   `mapstructure:"window_seconds"`
	Ceiling       int64 `mapstructure:"ceiling"`
	FailClosed    bool  `mapstructure:"fail_closed"`
}

// RetrievalConfig 存储检索增强相关的配置。
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// ProvidersConfig 汇总所有生成后端的配置。
type ProvidersConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	OpenAI OpenAIConfig `mapstructure:"openai"`
	Ollama OllamaConfig `mapstructure:"ollama"`
}

// GeminiConfig 存储云端托管后端的配置。
// MetadataEndpoint 指向工作负载身份令牌服务，留空则使用平台默认地址。
type GeminiConfig struct {
	APIKey           string `mapstructure:"api_key"`
	Endpoint         string `mapstructure:"endpoint"`
	MetadataEndpoint string `mapstructure:"metadata_endpoint"`
}

// OpenAIConfig 存储 OpenAI 兼容后端的配置。
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// OllamaConfig 存储自托管模型后端的配置。
type OllamaConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未显式配置的关键项填充默认值。
func applyDefaults() {
	if Conf.Quota.WindowSeconds <= 0 {
		Conf.Quota.WindowSeconds = 60
	}
	if Conf.Quota.Ceiling <= 0 {
		Conf.Quota.Ceiling = 600
	}
	if Conf.Retrieval.TopK <= 0 {
		Conf.Retrieval.TopK = 3
	}
	if Conf.Elasticsearch.IndexName == "" {
		Conf.Elasticsearch.IndexName = "gqx_documents"
	}
	if Conf.Kafka.Topic == "" {
		Conf.Kafka.Topic = "index_queue"
	}
	if Conf.Kafka.GroupID == "" {
		Conf.Kafka.GroupID = "gqx-index-worker"
	}
}

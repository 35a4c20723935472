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
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	AI            AIConfig            `mapstructure:"ai"`
	RAG           RAGConfig           `mapstructure:"rag"`
}

// ServerConfig 存储服务器相关的配置。
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

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
// 系统使用两个索引：memory_index 存储对话记忆向量，chunk_index 存储文档分块向量。
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	MemoryIndex string `mapstructure:"memory_index"`
	ChunkIndex  string `mapstructure:"chunk_index"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
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

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Summary    LLMSummaryConfig    `mapstructure:"summary"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMSummaryConfig 配置标题与分类调用使用的模型；Model 为空则复用主模型。
// 这类任务通常使用更低的温度。
type LLMSummaryConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// AIConfig 存放提示词模板与各类模型调用的超时设置。
// 模板在进程启动时加载一次，运行期间只读。
type AIConfig struct {
	Prompt  AIPromptConfig  `mapstructure:"prompt"`
	Timeout AITimeoutConfig `mapstructure:"timeout"`
}

// AIPromptConfig 配置系统提示与上下文前缀（可选，缺省值在代码中兜底）。
type AIPromptConfig struct {
	Rules            string `mapstructure:"rules"`
	DocumentPrefix   string `mapstructure:"document_prefix"`
	MemoryPrefix     string `mapstructure:"memory_prefix"`
	TitleRules       string `mapstructure:"title_rules"`
	SubstantiveRules string `mapstructure:"substantive_rules"`
}

// AITimeoutConfig 配置各类模型调用的超时时间（秒）。
type AITimeoutConfig struct {
	GenerationSeconds int `mapstructure:"generation_seconds"`
	StreamSeconds     int `mapstructure:"stream_seconds"`
	ClassifySeconds   int `mapstructure:"classify_seconds"`
	TitleSeconds      int `mapstructure:"title_seconds"`
}

// RAGConfig 配置检索增强相关的窗口与 top-k 参数。
type RAGConfig struct {
	HistorySize          int `mapstructure:"history_size"`
	StreamHistorySize    int `mapstructure:"stream_history_size"`
	MemoryTopK           int `mapstructure:"memory_top_k"`
	ChunkTopK            int `mapstructure:"chunk_top_k"`
	HistoryClassifyLimit int `mapstructure:"history_classify_limit"`
	ChunkSize            int `mapstructure:"chunk_size"`
	ChunkOverlap         int `mapstructure:"chunk_overlap"`
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

// applyDefaults 为关键的超时与检索参数设置缺省值，避免配置缺失导致零值超时。
func applyDefaults() {
	if Conf.AI.Timeout.GenerationSeconds == 0 {
		Conf.AI.Timeout.GenerationSeconds = 15
	}
	if Conf.AI.Timeout.StreamSeconds == 0 {
		Conf.AI.Timeout.StreamSeconds = 120
	}
	if Conf.AI.Timeout.ClassifySeconds == 0 {
		Conf.AI.Timeout.ClassifySeconds = 5
	}
	if Conf.AI.Timeout.TitleSeconds == 0 {
		Conf.AI.Timeout.TitleSeconds = 10
	}
	if Conf.RAG.HistorySize == 0 {
		Conf.RAG.HistorySize = 20
	}
	if Conf.RAG.StreamHistorySize == 0 {
		Conf.RAG.StreamHistorySize = 3
	}
	if Conf.RAG.MemoryTopK == 0 {
		Conf.RAG.MemoryTopK = 1
	}
	if Conf.RAG.ChunkTopK == 0 {
		Conf.RAG.ChunkTopK = 3
	}
	if Conf.RAG.HistoryClassifyLimit == 0 {
		Conf.RAG.HistoryClassifyLimit = 100
	}
	if Conf.RAG.ChunkSize == 0 {
		Conf.RAG.ChunkSize = 1000
	}
	if Conf.RAG.ChunkOverlap == 0 {
		Conf.RAG.ChunkOverlap = 200
	}
	if Conf.Embedding.Dimensions == 0 {
		Conf.Embedding.Dimensions = 768
	}
	if Conf.Elasticsearch.MemoryIndex == "" {
		Conf.Elasticsearch.MemoryIndex = "memory_embeddings"
	}
	if Conf.Elasticsearch.ChunkIndex == "" {
		Conf.Elasticsearch.ChunkIndex = "document_chunks"
	}
}

// Package config 负责加载、校验和管理应用程序的配置。
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// 受支持的存储后端类型。
const (
	StorageTypeLocal   = "local"
	StorageTypeNAS     = "nas"
	StorageTypeGCP     = "gcp"
	StorageTypeAWS     = "aws"
	StorageTypeAlibaba = "alibaba"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Files        FilesConfig        `mapstructure:"files"`
	Encryption   EncryptionConfig   `mapstructure:"encryption"`
	Notification NotificationConfig `mapstructure:"notification"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
}

// ServerConfig 存储 HTTP 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
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

// CacheConfig 存储元数据热缓存的配置。
type CacheConfig struct {
	Backend    string `mapstructure:"backend"` // "memory" 或 "redis"
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// StorageConfig 存储所有存储后端相关的配置。
type StorageConfig struct {
	Backend                 string        `mapstructure:"backend"` // 当前激活的主存储后端
	Local                   LocalConfig   `mapstructure:"local"`
	NAS                     NASConfig     `mapstructure:"nas"`
	AWS                     AWSConfig     `mapstructure:"aws"`
	GCP                     GCPConfig     `mapstructure:"gcp"`
	Alibaba                 AlibabaConfig `mapstructure:"alibaba"`
	MultipartThresholdBytes int64         `mapstructure:"multipart_threshold_bytes"`
	Retry                   RetryConfig   `mapstructure:"retry"`
}

// LocalConfig 存储本地文件系统后端的配置。
type LocalConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// NASConfig 存储 SFTP 网络存储后端的配置。
type NASConfig struct {
	Addr     string `mapstructure:"addr"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	RootDir  string `mapstructure:"root_dir"`
}

// AWSConfig 存储 S3 对象存储后端的配置。
type AWSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket"`
}

// GCPConfig 存储 GCS 对象存储后端的配置。
type GCPConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// AlibabaConfig 存储阿里云 OSS 后端的配置。
type AlibabaConfig struct {
	Endpoint string    `mapstructure:"endpoint"`
	Bucket   string    `mapstructure:"bucket"`
	STS      STSConfig `mapstructure:"sts"`
}

// STSConfig 存储 OSS 临时凭证（STS）及其定时刷新的配置。
type STSConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	SecurityToken   string `mapstructure:"security_token"`
	RefreshMinutes  int    `mapstructure:"refresh_minutes"`
}

// RetryConfig 存储存储操作的重试策略配置。
type RetryConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts"`
	MinBackoffMs int `mapstructure:"min_backoff_ms"`
	MaxBackoffMs int `mapstructure:"max_backoff_ms"`
}

// FilesConfig 存储上传文件的校验规则配置。
type FilesConfig struct {
	MaxSizeBytes     int64    `mapstructure:"max_size_bytes"`
	AllowedMimeTypes []string `mapstructure:"allowed_mime_types"`
}

// EncryptionConfig 存储静态加密相关的配置。
type EncryptionConfig struct {
	// Key 是 64 位十六进制字符串表示的 256 位 AES 密钥。
	Key string `mapstructure:"key"`
}

// NotificationConfig 存储通知摘要相关的配置。
type NotificationConfig struct {
	Kafka               KafkaConfig `mapstructure:"kafka"`
	DigestPeriodMinutes int         `mapstructure:"digest_period_minutes"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// CleanupConfig 存储孤儿文件清理任务的配置。
type CleanupConfig struct {
	PeriodMinutes int `mapstructure:"period_minutes"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件、解析并立即校验。
// 任何无效配置都会在启动阶段直接 panic，绝不推迟到运行时。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	if err := Conf.Validate(); err != nil {
		panic(fmt.Errorf("配置校验失败: %w", err))
	}
}

// Validate 在启动时校验配置的完整性与合法性。
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageTypeLocal:
		if c.Storage.Local.RootDir == "" {
			return fmt.Errorf("storage.local.root_dir 不能为空")
		}
	case StorageTypeNAS:
		if c.Storage.NAS.Addr == "" || c.Storage.NAS.User == "" {
			return fmt.Errorf("storage.nas 缺少 addr 或 user")
		}
	case StorageTypeAWS:
		if c.Storage.AWS.Endpoint == "" || c.Storage.AWS.Bucket == "" {
			return fmt.Errorf("storage.aws 缺少 endpoint 或 bucket")
		}
	case StorageTypeGCP:
		if c.Storage.GCP.Bucket == "" {
			return fmt.Errorf("storage.gcp.bucket 不能为空")
		}
	case StorageTypeAlibaba:
		if c.Storage.Alibaba.Endpoint == "" || c.Storage.Alibaba.Bucket == "" {
			return fmt.Errorf("storage.alibaba 缺少 endpoint 或 bucket")
		}
	default:
		return fmt.Errorf("未知的存储后端: %q", c.Storage.Backend)
	}

	// 回退副本总是写入本地盘，因此无论主后端是什么，本地根目录都必须配置。
	if c.Storage.Local.RootDir == "" {
		return fmt.Errorf("storage.local.root_dir 不能为空（故障回退副本需要本地目录）")
	}

	if err := validateEncryptionKey(c.Encryption.Key); err != nil {
		return err
	}

	if c.Storage.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("storage.retry.max_attempts 必须为正数")
	}
	if c.Storage.Retry.MinBackoffMs <= 0 || c.Storage.Retry.MaxBackoffMs < c.Storage.Retry.MinBackoffMs {
		return fmt.Errorf("storage.retry 的退避区间非法: [%d, %d]", c.Storage.Retry.MinBackoffMs, c.Storage.Retry.MaxBackoffMs)
	}
	if c.Storage.MultipartThresholdBytes <= 0 {
		return fmt.Errorf("storage.multipart_threshold_bytes 必须为正数")
	}

	if c.Files.MaxSizeBytes <= 0 {
		return fmt.Errorf("files.max_size_bytes 必须为正数")
	}
	if len(c.Files.AllowedMimeTypes) == 0 {
		return fmt.Errorf("files.allowed_mime_types 不能为空")
	}

	if c.Notification.Kafka.Brokers == "" || c.Notification.Kafka.Topic == "" {
		return fmt.Errorf("notification.kafka 缺少 brokers 或 topic")
	}
	if c.Notification.DigestPeriodMinutes <= 0 {
		return fmt.Errorf("notification.digest_period_minutes 必须为正数")
	}
	if c.Cleanup.PeriodMinutes <= 0 {
		return fmt.Errorf("cleanup.period_minutes 必须为正数")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("未知的缓存后端: %q", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds 必须为正数")
	}
	if c.Cache.Backend == "memory" && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries 必须为正数")
	}

	return nil
}

// validateEncryptionKey 校验 AES-256 密钥：必须是 64 位十六进制字符串。
func validateEncryptionKey(key string) error {
	if len(key) != 64 {
		return fmt.Errorf("encryption.key 长度必须为 64 个十六进制字符, 实际为 %d", len(key))
	}
	if _, err := hex.DecodeString(strings.ToLower(key)); err != nil {
		return fmt.Errorf("encryption.key 不是合法的十六进制字符串: %w", err)
	}
	return nil
}

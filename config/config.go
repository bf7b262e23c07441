package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Wardrobe WardrobeConfig `mapstructure:"wardrobe"`
	Detect   DetectConfig   `mapstructure:"detect"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts admin endpoints to these client IPs. Empty allows
	// any IP that presents the admin key.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | sqlite_memory | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type WardrobeConfig struct {
	// DefaultSlots is the slot set new collections start with. Kinds are
	// inferred from the ids.
	DefaultSlots []string `mapstructure:"default_slots"`
	// KindOrder is the bucket order used when sorting an outfit by kind.
	KindOrder     []string `mapstructure:"kind_order"`
	AutosaveS     int      `mapstructure:"autosave_s"`
	ImageFlushS   int      `mapstructure:"image_flush_s"`
	SummaryPrefix string   `mapstructure:"summary_prefix"`
}

type DetectConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	APIKey       string        `mapstructure:"api_key"`
	Prompt       string        `mapstructure:"prompt"`
	HistoryLines int           `mapstructure:"history_lines"`
	Retries      int           `mapstructure:"retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	// MaxFailures is the consecutive-failure count after which detection
	// disables itself.
	MaxFailures int           `mapstructure:"max_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type UploadConfig struct {
	MaxWidth     int   `mapstructure:"max_width"`
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// DefaultSlotIDs is the slot set used when the config does not override it.
var DefaultSlotIDs = []string{
	"headwear",
	"topwear",
	"topwear-underwear",
	"bottomwear",
	"bottomwear-underwear",
	"footwear",
	"head-accessory",
	"ear-accessory",
	"face-accessory",
	"mouth-accessory",
	"neck-accessory",
	"body-accessory",
	"arm-accessory",
	"hand-accessory",
	"waist-accessory",
	"bottomwear-accessory",
	"foot-accessory",
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WARDROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/wardrobe.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("wardrobe.default_slots", DefaultSlotIDs)
	v.SetDefault("wardrobe.kind_order", []string{"Clothing", "Accessory"})
	v.SetDefault("wardrobe.autosave_s", 300)
	v.SetDefault("wardrobe.image_flush_s", 30)
	v.SetDefault("wardrobe.summary_prefix", "summary")
	v.SetDefault("detect.history_lines", 10)
	v.SetDefault("detect.retries", 3)
	v.SetDefault("detect.retry_delay", "2s")
	v.SetDefault("detect.max_failures", 5)
	v.SetDefault("detect.timeout", "30s")
	v.SetDefault("detect.prompt", "List every outfit change in the chat as outfit-system commands.")
	v.SetDefault("upload.max_width", 1024)
	v.SetDefault("upload.max_size_bytes", 8<<20)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

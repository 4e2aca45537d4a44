package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Friendship block policies.
const (
	BlockPolicyRemove      = "remove"
	BlockPolicyMarkBlocked = "mark_blocked"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Friends  FriendsConfig  `mapstructure:"friends"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// ServerName is the local domain. Identifiers without a domain, or with
	// this domain, are local accounts.
	ServerName string `mapstructure:"server_name"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
	// OpTimeout bounds every store interaction.
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	AdminIPs       []string      `mapstructure:"admin_ips"`
}

type FriendsConfig struct {
	Enabled       bool               `mapstructure:"enabled"`
	RateLimiting  RateLimitingConfig `mapstructure:"rate_limiting"`
	Requests      RequestsConfig     `mapstructure:"requests"`
	FriendsList   FriendsListConfig  `mapstructure:"friends_list"`
	Blocking      BlockingConfig     `mapstructure:"blocking"`
	Privacy       PrivacyConfig      `mapstructure:"privacy"`
	Search        SearchConfig       `mapstructure:"search"`
	List          ListConfig         `mapstructure:"list"`
	SweepInterval time.Duration      `mapstructure:"sweep_interval"`
}

type RateLimitingConfig struct {
	MaxRequestsPerHour  int           `mapstructure:"max_requests_per_hour"`
	MaxResponsesPerHour int           `mapstructure:"max_responses_per_hour"`
	MaxBlocksPerHour    int           `mapstructure:"max_blocks_per_hour"`
	Window              time.Duration `mapstructure:"rate_limit_window"`
}

type RequestsConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	MessageMaxLength int  `mapstructure:"message_max_length"`
	ExpiryHours      int  `mapstructure:"expiry_hours"`
}

type FriendsListConfig struct {
	MaxFriendsPerUser int `mapstructure:"max_friends_per_user"`
}

type BlockingConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	MaxBlockedUsers  int    `mapstructure:"max_blocked_users"`
	FriendshipPolicy string `mapstructure:"friendship_policy"` // remove | mark_blocked
}

type PrivacyConfig struct {
	AllowFriendDiscovery bool `mapstructure:"allow_friend_discovery"`
}

type SearchConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	ResultLimit   int  `mapstructure:"result_limit"`
	MinCharacters int  `mapstructure:"min_characters"`
}

type ListConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type NotifyConfig struct {
	NATSURL           string `mapstructure:"nats_url"`
	NATSSubjectPrefix string `mapstructure:"nats_subject_prefix"`
	QueueSize         int    `mapstructure:"queue_size"`
	OnFriendRequest   bool   `mapstructure:"on_friend_request"`
	OnRequestAccepted bool   `mapstructure:"on_request_accepted"`
	OnFriendRemoved   bool   `mapstructure:"on_friend_removed"`
}

// RequestTTL is the lifetime of a pending friend request.
func (f FriendsConfig) RequestTTL() time.Duration {
	return time.Duration(f.Requests.ExpiryHours) * time.Hour
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.server_name", "localhost")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/friends.db")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("database.op_timeout", "5s")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("friends.enabled", true)
	v.SetDefault("friends.rate_limiting.max_requests_per_hour", 10)
	v.SetDefault("friends.rate_limiting.max_responses_per_hour", 100)
	v.SetDefault("friends.rate_limiting.max_blocks_per_hour", 30)
	v.SetDefault("friends.rate_limiting.rate_limit_window", "1h")
	v.SetDefault("friends.requests.enabled", true)
	v.SetDefault("friends.requests.message_max_length", 500)
	v.SetDefault("friends.requests.expiry_hours", 168)
	v.SetDefault("friends.friends_list.max_friends_per_user", 1000)
	v.SetDefault("friends.blocking.enabled", true)
	v.SetDefault("friends.blocking.max_blocked_users", 500)
	v.SetDefault("friends.blocking.friendship_policy", BlockPolicyRemove)
	v.SetDefault("friends.privacy.allow_friend_discovery", true)
	v.SetDefault("friends.search.enabled", true)
	v.SetDefault("friends.search.result_limit", 20)
	v.SetDefault("friends.search.min_characters", 2)
	v.SetDefault("friends.list.default_limit", 50)
	v.SetDefault("friends.list.max_limit", 200)
	v.SetDefault("friends.list.cache_ttl", "5s")
	v.SetDefault("friends.sweep_interval", "10m")
	v.SetDefault("notify.nats_subject_prefix", "federation.friends")
	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.on_friend_request", true)
	v.SetDefault("notify.on_request_accepted", true)
	v.SetDefault("notify.on_friend_removed", false)
}

// Default returns a Config populated only from defaults.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the friends engine cannot run with.
func (c *Config) Validate() error {
	f := c.Friends
	var errs []error
	if f.RateLimiting.MaxRequestsPerHour < 1 {
		errs = append(errs, errors.New("friends.rate_limiting.max_requests_per_hour must be at least 1"))
	}
	if f.RateLimiting.MaxResponsesPerHour < 1 {
		errs = append(errs, errors.New("friends.rate_limiting.max_responses_per_hour must be at least 1"))
	}
	if f.RateLimiting.MaxBlocksPerHour < 1 {
		errs = append(errs, errors.New("friends.rate_limiting.max_blocks_per_hour must be at least 1"))
	}
	if f.RateLimiting.Window < time.Minute {
		errs = append(errs, errors.New("friends.rate_limiting.rate_limit_window must be at least 60 seconds"))
	}
	if f.FriendsList.MaxFriendsPerUser < 1 {
		errs = append(errs, errors.New("friends.friends_list.max_friends_per_user must be at least 1"))
	}
	if f.Blocking.MaxBlockedUsers < 1 {
		errs = append(errs, errors.New("friends.blocking.max_blocked_users must be at least 1"))
	}
	if f.Requests.MessageMaxLength < 0 {
		errs = append(errs, errors.New("friends.requests.message_max_length must be non-negative"))
	}
	if f.Requests.ExpiryHours < 1 {
		errs = append(errs, errors.New("friends.requests.expiry_hours must be at least 1 hour"))
	}
	switch f.Blocking.FriendshipPolicy {
	case BlockPolicyRemove, BlockPolicyMarkBlocked:
	default:
		errs = append(errs, fmt.Errorf("friends.blocking.friendship_policy: unknown policy %q", f.Blocking.FriendshipPolicy))
	}
	if f.Search.MinCharacters < 1 {
		errs = append(errs, errors.New("friends.search.min_characters must be at least 1"))
	}
	if f.List.DefaultLimit < 1 || f.List.MaxLimit < f.List.DefaultLimit {
		errs = append(errs, errors.New("friends.list: default_limit must be >= 1 and <= max_limit"))
	}
	if f.SweepInterval <= 0 {
		errs = append(errs, errors.New("friends.sweep_interval must be positive"))
	}
	if c.Database.Mode == "mysql" && c.Database.MySQLDSN == "" {
		errs = append(errs, errors.New("database.mysql_dsn is required in mysql mode"))
	}
	if c.Server.ServerName == "" {
		errs = append(errs, errors.New("server.server_name is required"))
	}
	return errors.Join(errs...)
}

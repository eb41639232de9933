package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"go-comment-notifier/internal/infrastructure/logger"
)

const envPrefix = "COMMENTS"

// Queue names shared by the dispatcher, the consumers and the queue drivers.
const (
	QueueNotifications = "notifications"
	QueueWebSocket     = "websocket"
)

type Config struct {
	Socket SocketConfig `mapstructure:"socket"`
	API    APIConfig    `mapstructure:"api"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Log    LogConfig    `mapstructure:"log"`
}

type SocketConfig struct {
	Addr                 string        `mapstructure:"addr"`
	SendTimeout          time.Duration `mapstructure:"send_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	PongTimeout          time.Duration `mapstructure:"pong_timeout"`
	SendBuffer           int           `mapstructure:"send_buffer"`
	BroadcastParallelism int           `mapstructure:"broadcast_parallelism"`
	DirectListener       bool          `mapstructure:"direct_listener"`
}

type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

type QueueConfig struct {
	Driver       string         `mapstructure:"driver"`
	Buffer       int            `mapstructure:"buffer"`
	MaxAttempts  int            `mapstructure:"max_attempts"`
	RedisURL     string         `mapstructure:"redis_url"`
	PostgresDSN  string         `mapstructure:"postgres_dsn"`
	PollInterval time.Duration  `mapstructure:"poll_interval"`
	BlockTimeout time.Duration  `mapstructure:"block_timeout"`
	Lease        time.Duration  `mapstructure:"lease"`
	Consume      []string       `mapstructure:"consume"`
	Workers      map[string]int `mapstructure:"workers"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("socket.addr", "0.0.0.0:6001")
	v.SetDefault("socket.send_timeout", 5*time.Second)
	v.SetDefault("socket.write_timeout", 10*time.Second)
	v.SetDefault("socket.ping_interval", 54*time.Second)
	v.SetDefault("socket.pong_timeout", 60*time.Second)
	v.SetDefault("socket.send_buffer", 256)
	v.SetDefault("socket.broadcast_parallelism", 16)
	v.SetDefault("socket.direct_listener", false)

	v.SetDefault("api.addr", ":8080")

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.buffer", 1024)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.redis_url", "")
	v.SetDefault("queue.postgres_dsn", "")
	v.SetDefault("queue.poll_interval", time.Second)
	v.SetDefault("queue.block_timeout", 2*time.Second)
	v.SetDefault("queue.lease", 5*time.Minute)
	v.SetDefault("queue.consume", []string{QueueNotifications, QueueWebSocket})
	v.SetDefault("queue.workers", map[string]int{QueueNotifications: 1, QueueWebSocket: 1})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

// Load reads configuration from defaults, an optional YAML file at path and
// COMMENTS_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Queue.Driver {
	case "memory":
	case "redis":
		if c.Queue.RedisURL == "" {
			errs = append(errs, errors.New("queue.redis_url is required for the redis driver"))
		}
	case "postgres":
		if c.Queue.PostgresDSN == "" {
			errs = append(errs, errors.New("queue.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.driver %q", c.Queue.Driver))
	}

	for _, name := range c.Queue.Consume {
		if name != QueueNotifications && name != QueueWebSocket {
			errs = append(errs, fmt.Errorf("unknown queue %q in queue.consume", name))
		}
	}

	if c.Socket.DirectListener && c.Consumes(QueueWebSocket) {
		errs = append(errs, errors.New(
			"socket.direct_listener cannot be combined with consuming the websocket queue in the same process"))
	}

	if c.Socket.SendBuffer <= 0 {
		errs = append(errs, errors.New("socket.send_buffer must be positive"))
	}
	if c.Socket.BroadcastParallelism <= 0 {
		errs = append(errs, errors.New("socket.broadcast_parallelism must be positive"))
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("queue.max_attempts must be positive"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Consumes reports whether this process should run consumers for the queue.
func (c *Config) Consumes(queue string) bool {
	return slices.Contains(c.Queue.Consume, queue)
}

// WorkerCount returns the configured consumer concurrency for a queue (min 1).
func (c *Config) WorkerCount(queue string) int {
	if n := c.Queue.Workers[queue]; n > 0 {
		return n
	}
	return 1
}

// Logger converts the log section into the logger package's config.
func (c *Config) Logger() *logger.Config {
	lc := logger.NewDefaultConfig()
	lc.Level, _ = logger.ParseLevel(c.Log.Level)
	lc.Format = c.Log.Format
	lc.Output = c.Log.Output
	lc.FilePath = c.Log.FilePath
	lc.MaxSize = c.Log.MaxSize
	lc.MaxBackups = c.Log.MaxBackups
	lc.MaxAge = c.Log.MaxAge
	lc.Compress = c.Log.Compress
	return lc
}

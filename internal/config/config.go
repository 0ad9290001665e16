// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/rpc-balancer/internal/endpoint"
)

// SystemIDs зарезервированные идентификаторы процесса
type SystemIDs struct {
	HealthCheckUserID   uint32
	SubscriptionManager uint32
	Magic               uint32
}

const (
	HealthCheckUserID     uint32 = 1
	SubscriptionManagerID uint32 = 2
	Magic                 uint32 = 0xb153
)

// DefaultSystemIDs возвращает стандартный набор зарезервированных идентификаторов
func DefaultSystemIDs() SystemIDs {
	return SystemIDs{
		HealthCheckUserID:   HealthCheckUserID,
		SubscriptionManager: SubscriptionManagerID,
		Magic:               Magic,
	}
}

type RPCEntry struct {
	URL     string            `mapstructure:"url"`
	Kind    string            `mapstructure:"kind"`
	Headers map[string]string `mapstructure:"headers"`
}

type Config struct {
	RPCList             []RPCEntry    `mapstructure:"rpc_list"`
	MALength            int           `mapstructure:"ma_length"`
	HealthCheckCalls    int           `mapstructure:"health_check_calls"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	FailureThreshold    int           `mapstructure:"failure_threshold"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	StartupRetryMax     time.Duration `mapstructure:"startup_retry_max"`
	AdminAddr           string        `mapstructure:"admin_addr"`
	DebugLogging        bool          `mapstructure:"debug_logging"`
	LogFile             string        `mapstructure:"log_file"`

	System SystemIDs `mapstructure:"-"`
}

const (
	DefaultMALength            = 5
	DefaultHealthCheckCalls    = 1
	DefaultHealthCheckInterval = 10 * time.Second
	DefaultFailureThreshold    = 3
	DefaultCallTimeout         = 2 * time.Second
	DefaultStartupRetryMax     = 2 * time.Minute
	DefaultAdminAddr           = ":9090"
	DefaultLogFile             = "balancer.log"

	envPrefix = "RPC_BALANCER"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"ma_length":             DefaultMALength,
		"health_check_calls":    DefaultHealthCheckCalls,
		"health_check_interval": DefaultHealthCheckInterval,
		"failure_threshold":     DefaultFailureThreshold,
		"call_timeout":          DefaultCallTimeout,
		"batch_timeout":         0,
		"startup_retry_max":     DefaultStartupRetryMax,
		"admin_addr":            DefaultAdminAddr,
		"log_file":              DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.System = DefaultSystemIDs()
	normalize(&cfg)

	return &cfg, validateConfig(&cfg)
}

// EffectiveBatchTimeout возвращает общий дедлайн стартового раунда
func (c *Config) EffectiveBatchTimeout() time.Duration {
	if c.BatchTimeout > 0 {
		return c.BatchTimeout
	}
	return time.Duration(c.MALength) * c.CallTimeout
}

func normalize(cfg *Config) {
	for i := range cfg.RPCList {
		entry := &cfg.RPCList[i]
		entry.URL = strings.TrimSpace(entry.URL)
		entry.Kind = strings.ToLower(strings.TrimSpace(entry.Kind))
		if entry.Kind == "" {
			entry.Kind = endpoint.KindFromURL(entry.URL).String()
		}
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.RPCList) == 0 {
		return errors.New("rpc_list is empty")
	}
	seen := make(map[string]struct{}, len(cfg.RPCList))
	for _, entry := range cfg.RPCList {
		if err := validateEntry(entry); err != nil {
			return err
		}
		key := strings.TrimRight(entry.URL, "/")
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate rpc url: %s", entry.URL)
		}
		seen[key] = struct{}{}
	}
	return validateNumericParams(cfg)
}

func validateEntry(entry RPCEntry) error {
	switch entry.Kind {
	case "http":
		if err := validateURLWithCache(entry.URL, "http"); err != nil {
			return fmt.Errorf("invalid RPC URL %q: %w", entry.URL, err)
		}
	case "ws":
		if err := validateURLWithCache(entry.URL, "ws"); err != nil {
			return fmt.Errorf("invalid WebSocket URL %q: %w", entry.URL, err)
		}
	default:
		return fmt.Errorf("unknown rpc kind %q for %s", entry.Kind, entry.URL)
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.MALength <= 0 {
		return errors.New("invalid ma_length: must be at least 1")
	}
	if cfg.HealthCheckCalls <= 0 {
		return errors.New("invalid health_check_calls: must be at least 1")
	}
	if cfg.HealthCheckInterval <= 0 {
		return errors.New("invalid health_check_interval")
	}
	if cfg.FailureThreshold < 2 {
		return errors.New("invalid failure_threshold: must be at least 2")
	}
	if cfg.CallTimeout <= 0 {
		return errors.New("invalid call_timeout")
	}
	if cfg.BatchTimeout < 0 {
		return errors.New("invalid batch_timeout")
	}
	if cfg.StartupRetryMax < 0 {
		return errors.New("invalid startup_retry_max")
	}
	return nil
}

// EndpointKind возвращает тип протокола записи
func (e RPCEntry) EndpointKind() endpoint.Kind {
	if e.Kind == "ws" {
		return endpoint.KindWebSocket
	}
	return endpoint.KindHTTP
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	cacheKey := protocol + "|" + rawURL
	if _, ok := urlCache.Load(cacheKey); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) || parsed.Host == "" {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(cacheKey, parsed)
	return nil
}

func loadEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// список из окружения приходит строкой через запятую и заменяет список из файла
	if err := v.BindEnv("rpc_list_env", envPrefix+"_RPC_LIST"); err != nil {
		return err
	}
	envRPCList := v.GetString("rpc_list_env")
	if envRPCList == "" {
		return nil
	}

	var entries []map[string]interface{}
	for _, rpc := range strings.Split(envRPCList, ",") {
		clean := strings.TrimSpace(rpc)
		if clean != "" {
			entries = append(entries, map[string]interface{}{"url": clean})
		}
	}
	if len(entries) > 0 {
		v.Set("rpc_list", entries)
	}
	return nil
}

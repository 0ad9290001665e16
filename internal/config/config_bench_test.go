// internal/config/config_bench_test.go
package config

import (
	"testing"
	"time"
)

func BenchmarkLoadConfig(b *testing.B) {
	configPath := setupTestConfig(b, "config.json", validConfigJSON)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			b.Fatal(err)
		}
		if cfg == nil {
			b.Fatal("config is nil")
		}
	}
}

func BenchmarkValidateConfig(b *testing.B) {
	cfg := &Config{
		RPCList: []RPCEntry{
			{URL: "https://test-rpc.com", Kind: "http"},
			{URL: "wss://test-ws.com", Kind: "ws"},
		},
		MALength:            5,
		HealthCheckCalls:    1,
		HealthCheckInterval: 10 * time.Second,
		FailureThreshold:    3,
		CallTimeout:         2 * time.Second,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := validateConfig(cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLoadConfigWithEnvironment(b *testing.B) {
	b.Setenv("RPC_BALANCER_RPC_LIST", "https://env-rpc1.com,wss://env-rpc2.com")
	configPath := setupTestConfig(b, "config.json", validConfigJSON)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(configPath); err != nil {
			b.Fatal(err)
		}
	}
}

// Package config provides configuration management for filegate.
//
// Configuration is read from YAML, layered over built-in defaults, and
// optionally overridden from the environment:
//
//	cfg, err := config.LoadConfig("filegate.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("filegate.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention FILEGATE_SECTION_FIELD:
//
//   - FILEGATE_CACHE_TTL overrides cache.ttl
//   - FILEGATE_DECISION_BLOCK_THRESHOLD overrides decision.block_threshold
//   - FILEGATE_STORE_POSTGRES_DSN overrides store.postgres.dsn
//
// Environment variables always take precedence over the file.
//
// # Validation
//
// Validate collects every problem into a single ValidationError so a
// broken file can be fixed in one pass.
//
// # Hot Reload
//
// Watcher reloads the file on change. Only valid configurations are
// delivered; the gate applies new weights and thresholds atomically and
// purges its decision cache.
package config

package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds chatkeep configuration values.
type Config struct {
	DatabasePath     string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel         string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat        string        `mapstructure:"log_format" yaml:"log_format"`
	ChatPoolSize     int           `mapstructure:"chat_pool_size" yaml:"chat_pool_size"`
	MessagePoolSize  int           `mapstructure:"message_pool_size" yaml:"message_pool_size"`
	SaveChatAttempts int           `mapstructure:"save_chat_attempts" yaml:"save_chat_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	MaxDatabaseSize  int64         `mapstructure:"max_database_size" yaml:"max_database_size"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		DatabasePath:     "chats.db3",
		LogLevel:         "info",
		LogFormat:        "console",
		ChatPoolSize:     50,
		MessagePoolSize:  100,
		SaveChatAttempts: 3,
		RetryBackoff:     time.Second,
		MaxDatabaseSize:  50 * 1024 * 1024,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.ChatPoolSize != 0 {
		c.ChatPoolSize = other.ChatPoolSize
	}
	if other.MessagePoolSize != 0 {
		c.MessagePoolSize = other.MessagePoolSize
	}
	if other.SaveChatAttempts != 0 {
		c.SaveChatAttempts = other.SaveChatAttempts
	}
	if other.RetryBackoff != 0 {
		c.RetryBackoff = other.RetryBackoff
	}
	if other.MaxDatabaseSize != 0 {
		c.MaxDatabaseSize = other.MaxDatabaseSize
	}
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is empty"))
	}
	if c.ChatPoolSize < 0 || c.MessagePoolSize < 0 {
		errs = append(errs, errors.New("pool sizes must not be negative"))
	}
	if c.SaveChatAttempts < 0 {
		errs = append(errs, fmt.Errorf("save_chat_attempts %d is negative", c.SaveChatAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry_backoff %v is negative", c.RetryBackoff))
	}
	if c.MaxDatabaseSize < 0 {
		errs = append(errs, fmt.Errorf("max_database_size %d is negative", c.MaxDatabaseSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

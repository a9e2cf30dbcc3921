package core

import (
	"fmt"
	"strings"
)

type Config struct {
	ServiceName    string `koanf:"service_name" mapstructure:"service_name"`
	KindPrefix     string `koanf:"kind_prefix" mapstructure:"kind_prefix"`
	UserKind       string `koanf:"user_kind" mapstructure:"user_kind"`
	ConnectionKind string `koanf:"connection_kind" mapstructure:"connection_kind"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "connections",
		UserKind:       "User",
		ConnectionKind: "UserConnection",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.UserKind) == "" {
		return fmt.Errorf("core: user_kind is required")
	}
	if strings.TrimSpace(c.ConnectionKind) == "" {
		return fmt.Errorf("core: connection_kind is required")
	}
	kinds := c.Kinds()
	if kinds.User == kinds.Connection {
		return fmt.Errorf("core: user_kind and connection_kind must differ")
	}
	for _, kind := range []string{kinds.User, kinds.Connection} {
		if strings.Contains(kind, "/") {
			return fmt.Errorf("core: kind %q must not contain '/'", kind)
		}
	}
	return nil
}

// Kinds applies the kind prefix to both record kinds.
func (c Config) Kinds() KindNames {
	prefix := strings.TrimSpace(c.KindPrefix)
	return KindNames{
		User:       prefix + strings.TrimSpace(c.UserKind),
		Connection: prefix + strings.TrimSpace(c.ConnectionKind),
	}
}

package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultVerificationTTL   = 5 * time.Minute
	DefaultVerifyTimeout     = 10 * time.Second
	DefaultSweepBatchSize    = 100
	DefaultSweepLead         = time.Minute
	maxVerificationTTLSecond = 24 * 60 * 60
)

type GateConfig struct {
	VerificationTTLSeconds int `koanf:"verification_ttl_seconds" mapstructure:"verification_ttl_seconds"`
	VerifyTimeoutSeconds   int `koanf:"verify_timeout_seconds" mapstructure:"verify_timeout_seconds"`
}

type SweepConfig struct {
	BatchSize   int `koanf:"batch_size" mapstructure:"batch_size"`
	LeadSeconds int `koanf:"lead_seconds" mapstructure:"lead_seconds"`
}

type Config struct {
	ServiceName string      `koanf:"service_name" mapstructure:"service_name"`
	Gate        GateConfig  `koanf:"gate" mapstructure:"gate"`
	Sweep       SweepConfig `koanf:"sweep" mapstructure:"sweep"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "adconnect",
		Gate: GateConfig{
			VerificationTTLSeconds: int(DefaultVerificationTTL / time.Second),
			VerifyTimeoutSeconds:   int(DefaultVerifyTimeout / time.Second),
		},
		Sweep: SweepConfig{
			BatchSize:   DefaultSweepBatchSize,
			LeadSeconds: int(DefaultSweepLead / time.Second),
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Gate.VerificationTTLSeconds <= 0 || c.Gate.VerificationTTLSeconds > maxVerificationTTLSecond {
		return fmt.Errorf("core: gate.verification_ttl_seconds must be between 1 and %d", maxVerificationTTLSecond)
	}
	if c.Gate.VerifyTimeoutSeconds <= 0 {
		return fmt.Errorf("core: gate.verify_timeout_seconds must be positive")
	}
	if c.Gate.VerifyTimeoutSeconds >= c.Gate.VerificationTTLSeconds {
		return fmt.Errorf("core: gate.verify_timeout_seconds must be shorter than the verification ttl")
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("core: sweep.batch_size must be positive")
	}
	if c.Sweep.LeadSeconds < 0 || c.Sweep.LeadSeconds >= c.Gate.VerificationTTLSeconds {
		return fmt.Errorf("core: sweep.lead_seconds must be shorter than the verification ttl")
	}
	return nil
}

func (c Config) VerificationTTL() time.Duration {
	return time.Duration(c.Gate.VerificationTTLSeconds) * time.Second
}

func (c Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Gate.VerifyTimeoutSeconds) * time.Second
}

func (c Config) SweepLead() time.Duration {
	return time.Duration(c.Sweep.LeadSeconds) * time.Second
}

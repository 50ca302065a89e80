// Package config loads run context configuration from YAML, .env files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NASC_"

// ContextConfig describes a run context.
type ContextConfig struct {
	// Name is used in logs.
	Name string `yaml:"name" validate:"max=128"`
	// ContractNames register the context for children to find.
	ContractNames []string `yaml:"contract_names" validate:"dive,required"`
	// ParentContractNames select the parent contexts, in lookup order.
	ParentContractNames []string `yaml:"parent_contract_names" validate:"dive,required"`
	// Validating makes the context validate its graph instead of constructing it.
	Validating bool `yaml:"validate"`
	// LogLevel is a zap level name.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	// SelectionPolicy is last_registered or prefer_conditional.
	SelectionPolicy string `yaml:"selection_policy" validate:"omitempty,oneof=last_registered prefer_conditional"`
	// RequireAllArgs makes unused extra arguments an error.
	RequireAllArgs bool `yaml:"require_all_args"`
}

var validate = validator.New()

// Default returns the configuration used when nothing is set.
func Default() *ContextConfig {
	return &ContextConfig{
		LogLevel:        "info",
		SelectionPolicy: "prefer_conditional",
	}
}

// Load reads the YAML file at path (skipped when empty), loads envFiles into the
// environment, applies NASC_* overrides and validates the result.
// When no envFiles are given, a missing .env is not an error.
//
// Example:
//
//	cfg, err := config.Load("context.yaml")
func Load(path string, envFiles ...string) (*ContextConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		// .env may not exist outside development
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (*ContextConfig, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from NASC_* environment variables.
func (c *ContextConfig) ApplyEnv() error {
	if v, ok := lookupEnv("NAME"); ok {
		c.Name = v
	}
	if v, ok := lookupEnv("CONTRACT_NAMES"); ok {
		c.ContractNames = splitList(v)
	}
	if v, ok := lookupEnv("PARENT_CONTRACT_NAMES"); ok {
		c.ParentContractNames = splitList(v)
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookupEnv("SELECTION_POLICY"); ok {
		c.SelectionPolicy = v
	}

	var err error
	if c.Validating, err = envBool("VALIDATE", c.Validating); err != nil {
		return err
	}
	if c.RequireAllArgs, err = envBool("REQUIRE_ALL_ARGS", c.RequireAllArgs); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration.
func (c *ContextConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid context config: %w", err)
	}
	return nil
}

// ZapLevel returns the configured log level, info when unset.
func (c *ContextConfig) ZapLevel() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(c.LogLevel)
}

func lookupEnv(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

func envBool(name string, fallback bool) (bool, error) {
	v, ok := lookupEnv(name)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

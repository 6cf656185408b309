package application

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	pricing "qxlog/internal/pricing/domain"
)

// SeedConfig is the YAML shape of the initial rate table.
type SeedConfig struct {
	DefaultRate              string `yaml:"default_rate"`
	VideoRate                string `yaml:"video_rate"`
	NightRate                string `yaml:"night_rate"`
	LongCaseRate             string `yaml:"long_case_rate"`
	LongCaseThresholdMinutes int    `yaml:"long_case_threshold_minutes"`
	NightStart               string `yaml:"night_start"`
	NightEnd                 string `yaml:"night_end"`
}

// LoadSeed reads the seed rate table from path. An empty path yields the built-in defaults.
func LoadSeed(path string) (pricing.Setting, error) {
	if path == "" {
		return pricing.DefaultSetting(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pricing.Setting{}, err
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML seed. Missing keys keep their built-in default.
func ParseSeed(data []byte) (pricing.Setting, error) {
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return pricing.Setting{}, fmt.Errorf("pricing seed: %w", err)
	}

	setting := pricing.DefaultSetting()
	rates := []struct {
		raw    string
		target *decimal.Decimal
		name   string
	}{
		{cfg.DefaultRate, &setting.DefaultRate, "default_rate"},
		{cfg.VideoRate, &setting.VideoRate, "video_rate"},
		{cfg.NightRate, &setting.NightRate, "night_rate"},
		{cfg.LongCaseRate, &setting.LongCaseRate, "long_case_rate"},
	}
	for _, rate := range rates {
		if rate.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(rate.raw)
		if err != nil {
			return pricing.Setting{}, fmt.Errorf("%w: %s: %v", pricing.ErrConfigurationInvalid, rate.name, err)
		}
		*rate.target = value
	}
	if cfg.LongCaseThresholdMinutes != 0 {
		setting.LongCaseThresholdMinutes = cfg.LongCaseThresholdMinutes
	}
	if cfg.NightStart != "" {
		setting.NightStart = cfg.NightStart
	}
	if cfg.NightEnd != "" {
		setting.NightEnd = cfg.NightEnd
	}
	if err := setting.Validate(); err != nil {
		return pricing.Setting{}, err
	}
	return setting.Normalized(), nil
}

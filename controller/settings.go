package controller

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/pepper-guardian/guardian/controller/auth"
	"github.com/pepper-guardian/guardian/controller/modules/soil"
	"github.com/pepper-guardian/guardian/controller/telemetry"
)

// Settings is the process configuration read from the YAML file.
type Settings struct {
	Address  string               `yaml:"address"`
	Database string               `yaml:"database"`
	ModelDir string               `yaml:"model_dir"`
	Schedule string               `yaml:"schedule"`
	Soil     soil.Config          `yaml:"soil"`
	MQTT     telemetry.MQTTConfig `yaml:"mqtt"`
	Auth     auth.Config          `yaml:"auth"`
}

func DefaultSettings() Settings {
	return Settings{
		Address:  "0.0.0.0:8080",
		Database: "guardian.db",
		ModelDir: "model_results",
		Schedule: "@every 5s",
		Soil:     soil.DefaultConfig(),
	}
}

// LoadSettings reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(s.Soil.Cloud.Mapping) == 0 {
		s.Soil.Cloud.Mapping = soil.DefaultFieldMapping()
	}
	if err := s.Soil.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

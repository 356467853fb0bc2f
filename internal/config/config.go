// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Import struct {
		// Root folder holding per-domain init files
		DomainsDir string `json:"domains_dir"`
		// strict or lenient ordering of batch imports
		Mode string `json:"mode"`
	} `json:"import"`

	DefaultLanguage string `json:"default_language"`

	Environment string `json:"environment"` // dev, prod
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

func getConfigPath() string {
	env := os.Getenv("DOCFORGE_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = getConfigPath()
	}
	file, err := os.Open(path)
	if os.IsNotExist(err) && !explicit {
		// no config file: run on defaults
		c := &Config{LogLevel: "info", DefaultLanguage: "en"}
		c.Database.Path = "data/docforge"
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}

	return &config, nil
}

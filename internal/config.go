package internal

import (
	"encoding/json"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// StaticConfig is the service configuration, loaded from a JSON file
// with DAHUA_* environment variables layered on top.
type StaticConfig struct {
	CameraAddress  string   `json:"camera_address" envconfig:"CAMERA_ADDRESS"`
	Username       string   `json:"username" envconfig:"USERNAME"`
	Password       string   `json:"password" envconfig:"PASSWORD"`
	EventCodes     []string `json:"event_codes" envconfig:"EVENT_CODES"`
	ConnectRetries int      `json:"connect_retries" envconfig:"CONNECT_RETRIES"`

	RelayBindAddress string `json:"relay_bind_address" envconfig:"RELAY_BIND_ADDRESS"`

	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL"`
	LogDir   string `json:"log_dir" envconfig:"LOG_DIR"`

	// Secrets holds encrypted values referenced from other fields, for
	// example the camera password. See SecretManager.
	Secrets map[string]string `json:"secrets,omitempty"`
}

// LoadConfig reads the config file (optional) and applies environment
// overrides.
func LoadConfig(path string) (StaticConfig, error) {
	var config StaticConfig
	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return config, err
		}
		if err = json.Unmarshal(body, &config); err != nil {
			return config, err
		}
	}
	if err := envconfig.Process("DAHUA", &config); err != nil {
		return config, err
	}
	if len(config.EventCodes) == 0 {
		config.EventCodes = []string{"VideoMotion"}
	}
	return config, nil
}

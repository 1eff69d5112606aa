package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrMissingModelURI is returned when MODEL_URI is unset or empty.
var ErrMissingModelURI = errors.New("MODEL_URI not set.\nExample:\nexport MODEL_URI='runs:/<RUN_ID>/model'")

// Settings are read from the process environment.
type Settings struct {
	ModelURI     string        `envconfig:"MODEL_URI"`
	RegistryDir  string        `envconfig:"MODEL_REGISTRY_DIR" default:"mlruns"`
	FetchTimeout time.Duration `envconfig:"MODEL_FETCH_TIMEOUT" default:"30s"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("read model registry settings: %w", err)
	}
	return s, nil
}

// RequireModelURI fails with ErrMissingModelURI when no reference is set.
func (s Settings) RequireModelURI() error {
	if s.ModelURI == "" {
		return ErrMissingModelURI
	}
	return nil
}

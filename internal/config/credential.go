package config

import (
	"errors"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMissingCredential is returned when a remote provider has no API key in
// the environment or the settings file.
var ErrMissingCredential = errors.New("missing credential")

// credentialEnv lists the environment variables checked per provider, in
// order.
var credentialEnv = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// Credential resolves the API key for the configured provider: environment
// first, then api_key. The offline provider needs none.
func (c *Config) Credential() (string, error) {
	provider := strings.ToLower(c.Provider)
	if provider == "offline" {
		return "", nil
	}

	envs, ok := credentialEnv[provider]
	if !ok {
		envs = credentialEnv["anthropic"]
	}
	for _, name := range envs {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}
	if v := strings.TrimSpace(c.APIKey); v != "" {
		return v, nil
	}

	return "", eris.Wrapf(ErrMissingCredential, "config: set %s or api_key for provider %q",
		strings.Join(envs, " or "), c.Provider)
}

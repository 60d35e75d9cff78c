package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env reads configuration from environment variables. Hierarchical keys are
// mapped to variable names by upper-casing and replacing ":" with "_", with
// an optional prefix: "security:lockout:max_attempts" with prefix "AG"
// resolves AG_SECURITY_LOCKOUT_MAX_ATTEMPTS.
type Env struct {
	prefix string
}

// NewEnv creates an environment-backed Source with the given prefix.
// An empty prefix is allowed.
func NewEnv(prefix string) Env {
	return Env{prefix: strings.TrimSuffix(prefix, "_")}
}

// LoadDotenv loads the given dotenv files into the process environment
// before reading. Missing files are ignored so production deployments can
// run without a .env file.
func LoadDotenv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// Get implements Source.
func (e Env) Get(key string) (string, bool) {
	name := strings.ToUpper(strings.NewReplacer(":", "_", ".", "_", "-", "_").Replace(key))
	if e.prefix != "" {
		name = e.prefix + "_" + name
	}
	return os.LookupEnv(name)
}

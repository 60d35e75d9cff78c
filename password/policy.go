// Package password enforces credential strength and handles credential
// hashing. The policy engine validates candidate passwords against a
// configurable rule set, collecting every violated rule rather than
// stopping at the first.
package password

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/accessguard/accessguard/cache"
	"github.com/accessguard/accessguard/config"
)

// policyTTL bounds staleness after a remote policy change.
const policyTTL = 5 * time.Minute

const policyCacheKey = "password:policy"

// DefaultSpecialChars is the special-character set used when none is
// configured.
const DefaultSpecialChars = `!@#$%^&*()_+-=[]{}|;:'",.<>?/~` + "`"

// Policy is a point-in-time snapshot of the configured password rules.
// Every rule is independently toggle-able.
type Policy struct {
	MinLength      int    `json:"min_length"`
	MaxLength      int    `json:"max_length"`
	RequireUpper   bool   `json:"require_upper"`
	RequireLower   bool   `json:"require_lower"`
	RequireDigit   bool   `json:"require_digit"`
	RequireSpecial bool   `json:"require_special"`
	SpecialChars   string `json:"special_chars"`
}

// DefaultPolicy returns the rules applied when configuration is absent.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      128,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
		SpecialChars:   DefaultSpecialChars,
	}
}

// Result is the outcome of a validation. Errors holds one message per
// violated rule, in rule order.
type Result struct {
	Valid  bool
	Errors []string
}

// weakPasswords are rejected on an exact case-insensitive match.
var weakPasswords = []string{
	"password",
	"password1",
	"passw0rd",
	"123456",
	"12345678",
	"123456789",
	"qwerty",
	"qwerty123",
	"admin",
	"admin123",
	"letmein",
	"welcome",
	"welcome1",
	"iloveyou",
	"abc123",
	"monkey",
	"dragon",
	"sunshine",
	"football",
	"master",
}

// Engine validates passwords against the configured Policy. The resolved
// policy is read through the shared cache with a 5-minute TTL so validation
// does not hammer the configuration source on every attempt.
type Engine struct {
	source config.Source
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewEngine creates a policy engine over the given configuration source.
func NewEngine(source config.Source, c *cache.Cache, logger zerolog.Logger) *Engine {
	return &Engine{source: source, cache: c, logger: logger}
}

// CurrentPolicy returns the effective policy snapshot, cached for 5 minutes.
// A cache or configuration failure falls back to defaults rather than
// blocking validation.
func (e *Engine) CurrentPolicy(ctx context.Context) Policy {
	policy, err := cache.GetOrSet(ctx, e.cache, policyCacheKey, cache.Absolute(policyTTL), func(ctx context.Context) (Policy, error) {
		return e.loadPolicy(), nil
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("password policy load failed, using defaults")
		return DefaultPolicy()
	}
	return policy
}

func (e *Engine) loadPolicy() Policy {
	def := DefaultPolicy()
	return Policy{
		MinLength:      config.GetInt(e.source, "security:password:min_length", def.MinLength),
		MaxLength:      config.GetInt(e.source, "security:password:max_length", def.MaxLength),
		RequireUpper:   config.GetBool(e.source, "security:password:require_upper", def.RequireUpper),
		RequireLower:   config.GetBool(e.source, "security:password:require_lower", def.RequireLower),
		RequireDigit:   config.GetBool(e.source, "security:password:require_digit", def.RequireDigit),
		RequireSpecial: config.GetBool(e.source, "security:password:require_special", def.RequireSpecial),
		SpecialChars:   config.GetString(e.source, "security:password:special_chars", def.SpecialChars),
	}
}

// Validate checks password against the current policy. All violated rules
// are reported. An empty password short-circuits to a single error with no
// further rule evaluation.
func (e *Engine) Validate(ctx context.Context, password string) Result {
	return ValidateAgainst(e.CurrentPolicy(ctx), password)
}

// ValidateAgainst checks password against an explicit policy snapshot.
func ValidateAgainst(policy Policy, password string) Result {
	if password == "" {
		return Result{Errors: []string{"password is required"}}
	}

	var errs []string

	if len(password) < policy.MinLength || len(password) > policy.MaxLength {
		errs = append(errs, fmt.Sprintf("password length must be between %d and %d characters", policy.MinLength, policy.MaxLength))
	}
	if policy.RequireUpper && !strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if policy.RequireLower && !strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if policy.RequireDigit && !strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) {
		errs = append(errs, "password must contain a digit")
	}
	if policy.RequireSpecial && !strings.ContainsAny(password, policy.SpecialChars) {
		errs = append(errs, "password must contain a special character")
	}
	if isWeakPassword(password) {
		errs = append(errs, "password is too common")
	}
	if hasRepeatedRun(password, 4) {
		errs = append(errs, "password must not repeat the same character 4 or more times in a row")
	}
	if hasSequentialRun(password, 4) {
		errs = append(errs, "password must not contain sequential characters like abcd or 4321")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

func isWeakPassword(password string) bool {
	lowered := strings.ToLower(password)
	for _, weak := range weakPasswords {
		if lowered == weak {
			return true
		}
	}
	return false
}

// hasRepeatedRun reports whether password contains n identical consecutive
// bytes ("aaaa1111" fails at n=4).
func hasRepeatedRun(password string, n int) bool {
	run := 1
	for i := 1; i < len(password); i++ {
		if password[i] == password[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasSequentialRun reports whether password contains a monotonic arithmetic
// run of n consecutive bytes with step +1 or -1. "abcd" and "4321" fail at
// n=4; alternating patterns like "abab" do not.
func hasSequentialRun(password string, n int) bool {
	if len(password) < n {
		return false
	}
	run := 1
	var step int
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if (diff == 1 || diff == -1) && (run == 1 || diff == step) {
			step = diff
			run++
			if run >= n {
				return true
			}
		} else if diff == 1 || diff == -1 {
			step = diff
			run = 2
		} else {
			run = 1
		}
	}
	return false
}

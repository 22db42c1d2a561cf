package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/karzal/wove/pkg/models"
)

var (
	envVarPattern = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

	// Contexts in which a {{NAME}} token is clearly a secret lookup rather
	// than ordinary user text. This list is a compatibility contract; do not
	// extend it casually.
	properContextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bbearer\s+\{\{[A-Za-z_][A-Za-z0-9_]*\}\}`),
		regexp.MustCompile(`(?i)\b(?:api_key|token)=\{\{[A-Za-z_][A-Za-z0-9_]*\}\}`),
		regexp.MustCompile(`(?i)\bx-api-key:\s*\{\{[A-Za-z_][A-Za-z0-9_]*\}\}`),
	}
)

// isSecretKey reports whether a parameter name designates a secret-like
// field, which permits env-var substitution in its value.
func isSecretKey(key string) bool {
	lowered := strings.ToLower(key)

	return strings.Contains(lowered, "apikey") ||
		strings.Contains(lowered, "secret") ||
		strings.Contains(lowered, "token")
}

// isLoneEnvToken reports whether the string is exactly one {{NAME}} token.
func isLoneEnvToken(value string) bool {
	match := envVarPattern.FindString(value)

	return match != "" && match == strings.TrimSpace(value)
}

// inProperContext reports whether the string embeds {{NAME}} in a recognized
// secret-bearing position (auth headers, key/token query parameters).
func inProperContext(value string) bool {
	for _, pattern := range properContextPatterns {
		if pattern.MatchString(value) {
			return true
		}
	}

	return false
}

// substituteEnvVars replaces {{NAME}} placeholders with environment values.
// Substitution is asymmetric on purpose: it only fires for secret-like field
// names, lone tokens, or whitelisted contexts, so ordinary user text
// containing {{...}} is never treated as a secret lookup.
func (r *Resolver) substituteEnvVars(block *models.Block, execCtx *models.ExecutionContext, value string, secretField bool) (string, error) {
	if !envVarPattern.MatchString(value) {
		return value, nil
	}

	if !secretField && !isLoneEnvToken(value) && !inProperContext(value) {
		return value, nil
	}

	var resolveErr error

	result := envVarPattern.ReplaceAllStringFunc(value, func(token string) string {
		if resolveErr != nil {
			return token
		}

		name := token[2 : len(token)-2]

		envValue, ok := execCtx.EnvironmentVariables[name]
		if !ok {
			resolveErr = &Error{
				Kind:      KindEnvVarNotFound,
				Reference: token,
				BlockID:   block.ID,
				Message:   fmt.Sprintf("environment variable %q is not defined", name),
			}

			return token
		}

		return envValue
	})

	if resolveErr != nil {
		return "", resolveErr
	}

	return result, nil
}

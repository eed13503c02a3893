package corecfg

import (
	"os"
	"strings"
)

// envPrecedence is the strict order spec §4.1 dictates for environment
// detection.
var envPrecedence = []string{"ENVIRONMENT", "NODE_ENV", "APP_ENV", "DEPLOYMENT_ENV"}

// EnvironmentRecommendation mirrors the original source's
// EnvironmentRecommendation: a detected environment plus the reasoning and
// confidence behind it, useful for /v1/health and operator inspection.
type EnvironmentRecommendation struct {
	Environment Environment
	Reasoning   string
	Confidence  float64
	Source      string // which env var (or "default") produced the match
}

// DetectEnvironment inspects ENVIRONMENT, NODE_ENV, APP_ENV, DEPLOYMENT_ENV
// in that order. Exact matches against development/staging/production win
// outright; failing that, substring patterns classify the value; if no
// variable is set, or no set value matches, the default is Development.
func DetectEnvironment(lookup func(string) (string, bool)) EnvironmentRecommendation {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	for _, name := range envPrecedence {
		raw, ok := lookup(name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		value := strings.ToLower(strings.TrimSpace(raw))

		if env, ok := exactEnvironmentMatch(value); ok {
			return EnvironmentRecommendation{
				Environment: env,
				Reasoning:   "exact match of " + name + "=" + raw,
				Confidence:  1.0,
				Source:      name,
			}
		}

		if env, pattern, ok := patternEnvironmentMatch(value); ok {
			return EnvironmentRecommendation{
				Environment: env,
				Reasoning:   name + "=" + raw + " matched pattern " + pattern,
				Confidence:  0.75,
				Source:      name,
			}
		}
	}

	return EnvironmentRecommendation{
		Environment: Development,
		Reasoning:   "no environment variable matched; defaulting to development",
		Confidence:  0.5,
		Source:      "default",
	}
}

func exactEnvironmentMatch(value string) (Environment, bool) {
	switch value {
	case "development":
		return Development, true
	case "staging":
		return Staging, true
	case "production":
		return Production, true
	default:
		return "", false
	}
}

var productionPatterns = []string{"prod", "live", "release"}
var stagingPatterns = []string{"stag", "uat", "preprod"}
var developmentPatterns = []string{"dev", "local", "test", "sandbox"}

func patternEnvironmentMatch(value string) (Environment, string, bool) {
	// Staging is checked first so that "preprod" is not caught by "prod".
	for _, p := range stagingPatterns {
		if strings.Contains(value, p) {
			return Staging, p, true
		}
	}
	for _, p := range productionPatterns {
		if strings.Contains(value, p) {
			return Production, p, true
		}
	}
	for _, p := range developmentPatterns {
		if strings.Contains(value, p) {
			return Development, p, true
		}
	}
	return "", "", false
}

// wantsAIVariant reports whether ENABLE_AI_CACHE selects the ai-* preset
// family under the "auto" cache preset.
func wantsAIVariant(lookup func(string) (string, bool)) bool {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	raw, ok := lookup("ENABLE_AI_CACHE")
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

package coreauth

import coreerrors "github.com/blueberrycongee/aicore/pkg/errors"

// errNoKeysConfigured is returned by New when requireKey is true and the
// environment supplies neither API_KEY nor ADDITIONAL_API_KEYS — the
// fail-fast production/staging check (spec §4.1 "production requires an
// API key").
var errNoKeysConfigured = coreerrors.NewConfigurationError(
	"no API keys configured in a production or staging environment",
	"API_KEY", "ADDITIONAL_API_KEYS",
)

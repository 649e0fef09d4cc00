package githubauth

import (
	"os"
	"strings"
)

// Environment variables gh reads for its own authentication, in precedence order.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
)

// AmbientKeyringSource names the fallback when no token variable is exported and gh uses its own login.
const AmbientKeyringSource = "gh auth login"

var ambientTokenPreference = []string{
	EnvGitHubCLIToken,
	EnvGitHubToken,
}

// Lookup obtains an environment variable value.
type Lookup func(key string) (string, bool)

// AmbientTokenVariable reports which variable gh would authenticate with when no bot token is injected.
// A nil lookup reads the process environment.
func AmbientTokenVariable(lookup Lookup) (string, bool) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, key := range ambientTokenPreference {
		value, exists := lookup(key)
		if exists && len(strings.TrimSpace(value)) > 0 {
			return key, true
		}
	}
	return "", false
}

// AmbientSource describes the identity gh falls back to: a token variable name or its stored login.
func AmbientSource(lookup Lookup) string {
	if variable, found := AmbientTokenVariable(lookup); found {
		return variable
	}
	return AmbientKeyringSource
}

package credentials

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"strconv"
	"strings"
)

// Environment variable names recognised by EnvironmentStrategy.
const (
	EnvAppID          = "GH_BOT_APP_ID"
	EnvInstallationID = "GH_BOT_INSTALLATION_ID"
	EnvPrivateKey     = "GH_BOT_PRIVATE_KEY"
	EnvHuman          = "GH_BOT_HUMAN"
	EnvAgent          = "GH_BOT_AGENT"
	EnvRepository     = "GH_BOT_REPO"
)

const (
	pemHeaderPrefixConstant           = "-----BEGIN"
	escapedNewlineConstant            = `\n`
	newlineConstant                   = "\n"
	privateKeyMissingMessageConstant  = "value required when app and installation ids are set"
	privateKeyEncodingMessageConstant = "expected PEM text or base64-encoded PEM"
)

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// EnvironmentStrategy reads GH_BOT_* variables. When both identifiers are present and numeric the
// environment owns the record; a missing private key is then a ConfigurationError rather than a fallthrough.
type EnvironmentStrategy struct {
	lookup EnvironmentLookup
}

// NewEnvironmentStrategy builds a strategy; a nil lookup uses os.LookupEnv.
func NewEnvironmentStrategy(lookup EnvironmentLookup) *EnvironmentStrategy {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvironmentStrategy{lookup: lookup}
}

// Source implements Strategy.
func (strategy *EnvironmentStrategy) Source() Source {
	return SourceEnvironment
}

// Resolve implements Strategy.
func (strategy *EnvironmentStrategy) Resolve(resolutionContext context.Context) (AppCredentials, bool, error) {
	appIdentifier, appIdentifierPresent := strategy.numericValue(EnvAppID)
	installationIdentifier, installationPresent := strategy.numericValue(EnvInstallationID)
	if !appIdentifierPresent || !installationPresent {
		return AppCredentials{}, false, nil
	}

	rawPrivateKey := strategy.value(EnvPrivateKey)
	if len(rawPrivateKey) == 0 {
		return AppCredentials{}, false, ConfigurationError{Source: SourceEnvironment, Field: EnvPrivateKey, Message: privateKeyMissingMessageConstant}
	}
	privateKeyPEM, decodeError := DecodePrivateKey(rawPrivateKey)
	if decodeError != nil {
		return AppCredentials{}, false, ConfigurationError{Source: SourceEnvironment, Field: EnvPrivateKey, Message: privateKeyEncodingMessageConstant}
	}

	return AppCredentials{
		AppID:          appIdentifier,
		InstallationID: installationIdentifier,
		PrivateKeyPEM:  privateKeyPEM,
		Identity: Identity{
			Human:      strategy.value(EnvHuman),
			Agent:      strategy.value(EnvAgent),
			Repository: strategy.value(EnvRepository),
		},
	}, true, nil
}

func (strategy *EnvironmentStrategy) value(key string) string {
	value, exists := strategy.lookup(key)
	if !exists {
		return ""
	}
	return strings.TrimSpace(value)
}

func (strategy *EnvironmentStrategy) numericValue(key string) (int64, bool) {
	parsedValue, parseError := strconv.ParseInt(strategy.value(key), 10, 64)
	if parseError != nil || parsedValue <= 0 {
		return 0, false
	}
	return parsedValue, true
}

// DecodePrivateKey accepts PEM text, PEM with literal "\n" escapes, or base64-encoded PEM.
func DecodePrivateKey(rawValue string) ([]byte, error) {
	trimmedValue := strings.TrimSpace(rawValue)
	if strings.HasPrefix(trimmedValue, pemHeaderPrefixConstant) {
		return []byte(strings.ReplaceAll(trimmedValue, escapedNewlineConstant, newlineConstant) + newlineConstant), nil
	}

	decodedValue, decodeError := base64.StdEncoding.DecodeString(trimmedValue)
	if decodeError != nil {
		return nil, decodeError
	}
	if !bytes.HasPrefix(bytes.TrimSpace(decodedValue), []byte(pemHeaderPrefixConstant)) {
		return nil, base64.CorruptInputError(0)
	}
	return decodedValue, nil
}

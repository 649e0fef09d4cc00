package credentials

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	setupInstructionConstant                = "run `ghbot auth setup` or export GH_BOT_APP_ID, GH_BOT_INSTALLATION_ID, and GH_BOT_PRIVATE_KEY"
	configurationErrorTemplateConstant      = "%s credentials invalid: %s: %s (%s)"
	configurationErrorNoFieldTemplate       = "%s credentials invalid: %s (%s)"
	credentialsResolvedMessageConstant      = "github app credentials resolved"
	credentialsNotConfiguredMessageConstant = "github app credentials not configured"
	strategyUnavailableMessageConstant      = "credential source incomplete"
	logFieldSourceConstant                  = "credential_source"
	logFieldAppIdentifierConstant           = "app_id"
	logFieldInstallationConstant            = "installation_id"
)

// Source identifies where a credential record was found.
type Source string

// Credential sources in resolution order.
const (
	SourceEnvironment Source = Source("environment")
	SourceStored      Source = Source("stored")
)

// Identity carries optional metadata describing who the bot acts for.
type Identity struct {
	Human      string
	Agent      string
	Repository string
}

// AppCredentials identifies a GitHub App installation and holds the key used to sign assertions.
// InstallationID may be zero when Identity.Repository is set; the installation is then looked up by repository.
type AppCredentials struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPEM  []byte
	Identity       Identity
	Source         Source
}

// Complete reports whether the record can be used to mint installation tokens.
func (appCredentials AppCredentials) Complete() bool {
	if appCredentials.AppID <= 0 || len(appCredentials.PrivateKeyPEM) == 0 {
		return false
	}
	return appCredentials.InstallationID > 0 || len(strings.TrimSpace(appCredentials.Identity.Repository)) > 0
}

// Equal reports whether two records describe the same App key and installation.
func (appCredentials AppCredentials) Equal(other AppCredentials) bool {
	return appCredentials.AppID == other.AppID &&
		appCredentials.InstallationID == other.InstallationID &&
		strings.TrimSpace(appCredentials.Identity.Repository) == strings.TrimSpace(other.Identity.Repository) &&
		string(appCredentials.PrivateKeyPEM) == string(other.PrivateKeyPEM)
}

// ConfigurationError reports missing or malformed credentials. It is user-actionable and carries a setup instruction.
type ConfigurationError struct {
	Source  Source
	Field   string
	Message string
}

// Error describes the configuration problem.
func (configurationError ConfigurationError) Error() string {
	source := configurationError.Source
	if len(source) == 0 {
		source = Source("github app")
	}
	if len(configurationError.Field) == 0 {
		return fmt.Sprintf(configurationErrorNoFieldTemplate, source, configurationError.Message, setupInstructionConstant)
	}
	return fmt.Sprintf(configurationErrorTemplateConstant, source, configurationError.Field, configurationError.Message, setupInstructionConstant)
}

// SetupInstruction returns the remediation shown to users.
func (configurationError ConfigurationError) SetupInstruction() string {
	return setupInstructionConstant
}

// Strategy resolves a complete credential record from one source.
// A strategy returns false when its source holds no complete record.
type Strategy interface {
	Source() Source
	Resolve(resolutionContext context.Context) (AppCredentials, bool, error)
}

// Resolver evaluates strategies in order; the first complete record wins.
type Resolver struct {
	logger     *zap.Logger
	strategies []Strategy
}

// NewResolver builds a resolver over the supplied strategies.
func NewResolver(logger *zap.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	registeredStrategies := make([]Strategy, 0, len(strategies))
	for _, strategy := range strategies {
		if strategy != nil {
			registeredStrategies = append(registeredStrategies, strategy)
		}
	}
	return &Resolver{logger: logger, strategies: registeredStrategies}
}

// Resolve returns the first complete record. A false result without error means no source is configured.
func (resolver *Resolver) Resolve(resolutionContext context.Context) (AppCredentials, bool, error) {
	for _, strategy := range resolver.strategies {
		appCredentials, found, resolveError := strategy.Resolve(resolutionContext)
		if resolveError != nil {
			return AppCredentials{}, false, resolveError
		}
		if !found {
			resolver.logger.Debug(strategyUnavailableMessageConstant, zap.String(logFieldSourceConstant, string(strategy.Source())))
			continue
		}
		appCredentials.Source = strategy.Source()
		resolver.logger.Debug(
			credentialsResolvedMessageConstant,
			zap.String(logFieldSourceConstant, string(appCredentials.Source)),
			zap.Int64(logFieldAppIdentifierConstant, appCredentials.AppID),
			zap.Int64(logFieldInstallationConstant, appCredentials.InstallationID),
		)
		return appCredentials, true, nil
	}

	resolver.logger.Debug(credentialsNotConfiguredMessageConstant)
	return AppCredentials{}, false, nil
}

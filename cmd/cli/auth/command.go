package auth

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/githubapp"
	"github.com/temirov/ghbot/internal/setup"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	authCommandUseConstant                   = "auth"
	authCommandShortDescriptionConstant      = "Manage the GitHub App identity used by ghbot"
	authCommandLongDescriptionConstant       = "auth stores, inspects, and removes the GitHub App credentials that let ghbot act as a bot account."
	setupCommandUseConstant                  = "setup"
	setupCommandShortDescriptionConstant     = "Store GitHub App credentials"
	setupCommandLongDescriptionConstant      = "setup stores the App ID and installation in the ghbot config directory and the private key in the system keychain. Missing values are prompted for."
	statusCommandUseConstant                 = "status"
	statusCommandShortDescriptionConstant    = "Show which credentials are active"
	tokenCommandUseConstant                  = "token"
	tokenCommandShortDescriptionConstant     = "Print an installation token"
	tokenCommandLongDescriptionConstant      = "token prints a cached or freshly exchanged installation token, suitable for GH_TOKEN."
	clearCommandUseConstant                  = "clear"
	clearCommandShortDescriptionConstant     = "Remove stored credentials"
	appIDFlagNameConstant                    = "app-id"
	appIDFlagUsageConstant                   = "GitHub App ID"
	installationIDFlagNameConstant           = "installation-id"
	installationIDFlagUsageConstant          = "GitHub App installation ID"
	privateKeyFileFlagNameConstant           = "private-key-file"
	privateKeyFileFlagUsageConstant          = "Path to the App private key (.pem)"
	humanFlagNameConstant                    = "human"
	humanFlagUsageConstant                   = "GitHub login of the human the bot acts for"
	agentFlagNameConstant                    = "agent"
	agentFlagUsageConstant                   = "Agent name recorded with the credentials"
	repositoryFlagNameConstant               = "repo"
	repositoryFlagUsageConstant              = "Default repository (owner/name); also used to look up the installation"
	noPromptFlagNameConstant                 = "no-prompt"
	noPromptFlagUsageConstant                = "Fail instead of prompting for missing values"
	verifyFlagNameConstant                   = "verify"
	verifyFlagUsageConstant                  = "Exchange a token and list the repositories the installation can access"
	servicesNotConfiguredMessageConstant     = "auth services are not configured"
	notConfiguredErrorMessageConstant        = "github app credentials are not configured"
	setupSavedTemplateConstant               = "Saved credentials for GitHub App %d to %s\n"
	clearCompletedTemplateConstant           = "Removed stored credentials from %s and the system keychain\n"
	setupCommandFailedTemplateConstant       = "auth setup failed: %w"
	statusVerificationFailedTemplateConstant = "auth status verification failed: %w"
	notConfiguredTemplateConstant            = "%w; %s"
	credentialsResolvedMessageConstant       = "resolved github app credentials"
	logFieldSourceConstant                   = "source"
	logFieldConfiguredConstant               = "configured"
)

// ErrNotConfigured indicates that no credential source is complete.
var ErrNotConfigured = errors.New(notConfiguredErrorMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CredentialsResolver resolves the active GitHub App credentials.
type CredentialsResolver interface {
	Resolve(resolutionContext context.Context) (credentials.AppCredentials, bool, error)
}

// TokenIssuer mints and verifies installation tokens.
type TokenIssuer interface {
	Token(executionContext context.Context) (string, error)
	VerifyInstallation(executionContext context.Context) (githubapp.InstallationStatus, error)
}

// CredentialsStore collects, persists, and removes stored credentials.
type CredentialsStore interface {
	Collect(executionContext context.Context, prompter setup.Prompter, defaults setup.Request, lookup setup.LoginLookup) (setup.Request, error)
	Save(request setup.Request) (credentials.AppCredentials, error)
	Clear() error
}

// Services are the collaborators used by the auth commands.
type Services struct {
	Resolver      CredentialsResolver
	IssuerFactory func(credentials.AppCredentials) TokenIssuer
	Store         CredentialsStore
	LoginLookup   setup.LoginLookup
	StorePath     string
	AmbientSource string
}

// ServicesProvider builds Services once configuration is loaded.
type ServicesProvider func(executionContext context.Context) (Services, error)

// Status is printed by auth status.
type Status struct {
	Configured     bool                          `json:"configured"`
	Source         credentials.Source            `json:"source,omitempty"`
	AppID          int64                         `json:"appId,omitempty"`
	InstallationID int64                         `json:"installationId,omitempty"`
	Human          string                        `json:"human,omitempty"`
	Agent          string                        `json:"agent,omitempty"`
	Repository     string                        `json:"repo,omitempty"`
	StorePath      string                        `json:"storePath,omitempty"`
	SetupHint      string                        `json:"setupHint,omitempty"`
	AmbientSource  string                        `json:"ambientSource,omitempty"`
	Installation   *githubapp.InstallationStatus `json:"installation,omitempty"`
}

// CommandBuilder assembles the auth command hierarchy.
type CommandBuilder struct {
	LoggerProvider   LoggerProvider
	ServicesProvider ServicesProvider
}

// Build constructs the auth command with setup, status, token, and clear subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	authCommand := &cobra.Command{
		Use:   authCommandUseConstant,
		Short: authCommandShortDescriptionConstant,
		Long:  authCommandLongDescriptionConstant,
	}

	setupCommand := &cobra.Command{
		Use:   setupCommandUseConstant,
		Short: setupCommandShortDescriptionConstant,
		Long:  setupCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runSetup,
	}
	setupCommand.Flags().Int64(appIDFlagNameConstant, 0, appIDFlagUsageConstant)
	setupCommand.Flags().Int64(installationIDFlagNameConstant, 0, installationIDFlagUsageConstant)
	setupCommand.Flags().String(privateKeyFileFlagNameConstant, "", privateKeyFileFlagUsageConstant)
	setupCommand.Flags().String(humanFlagNameConstant, "", humanFlagUsageConstant)
	setupCommand.Flags().String(agentFlagNameConstant, "", agentFlagUsageConstant)
	setupCommand.Flags().String(repositoryFlagNameConstant, "", repositoryFlagUsageConstant)
	setupCommand.Flags().Bool(noPromptFlagNameConstant, false, noPromptFlagUsageConstant)

	statusCommand := &cobra.Command{
		Use:   statusCommandUseConstant,
		Short: statusCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runStatus,
	}
	statusCommand.Flags().Bool(verifyFlagNameConstant, false, verifyFlagUsageConstant)

	tokenCommand := &cobra.Command{
		Use:   tokenCommandUseConstant,
		Short: tokenCommandShortDescriptionConstant,
		Long:  tokenCommandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runToken,
	}

	clearCommand := &cobra.Command{
		Use:   clearCommandUseConstant,
		Short: clearCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runClear,
	}

	authCommand.AddCommand(setupCommand, statusCommand, tokenCommand, clearCommand)
	return authCommand, nil
}

func (builder *CommandBuilder) runSetup(command *cobra.Command, arguments []string) error {
	services, servicesError := builder.resolveServices(command.Context())
	if servicesError != nil {
		return servicesError
	}

	request, requestError := parseSetupRequest(command)
	if requestError != nil {
		return requestError
	}

	noPrompt, noPromptError := command.Flags().GetBool(noPromptFlagNameConstant)
	if noPromptError != nil {
		return noPromptError
	}
	if !noPrompt {
		prompter := setup.NewIOPrompter(command.InOrStdin(), command.ErrOrStderr())
		collectedRequest, collectError := services.Store.Collect(command.Context(), prompter, request, services.LoginLookup)
		if collectError != nil {
			return fmt.Errorf(setupCommandFailedTemplateConstant, collectError)
		}
		request = collectedRequest
	}

	savedCredentials, saveError := services.Store.Save(request)
	if saveError != nil {
		return fmt.Errorf(setupCommandFailedTemplateConstant, saveError)
	}

	_, writeError := fmt.Fprintf(command.OutOrStdout(), setupSavedTemplateConstant, savedCredentials.AppID, services.StorePath)
	return writeError
}

func (builder *CommandBuilder) runStatus(command *cobra.Command, arguments []string) error {
	services, servicesError := builder.resolveServices(command.Context())
	if servicesError != nil {
		return servicesError
	}

	appCredentials, configured, resolveError := services.Resolver.Resolve(command.Context())
	if resolveError != nil {
		return resolveError
	}

	builder.resolveLogger().Debug(credentialsResolvedMessageConstant, zap.Bool(logFieldConfiguredConstant, configured), zap.String(logFieldSourceConstant, string(appCredentials.Source)))

	status := Status{Configured: configured, StorePath: services.StorePath}
	if !configured {
		status.SetupHint = credentials.ConfigurationError{}.SetupInstruction()
		status.AmbientSource = services.AmbientSource
		return utils.WriteJSON(command.OutOrStdout(), status)
	}

	status.Source = appCredentials.Source
	status.AppID = appCredentials.AppID
	status.InstallationID = appCredentials.InstallationID
	status.Human = appCredentials.Identity.Human
	status.Agent = appCredentials.Identity.Agent
	status.Repository = appCredentials.Identity.Repository

	verify, verifyFlagError := command.Flags().GetBool(verifyFlagNameConstant)
	if verifyFlagError != nil {
		return verifyFlagError
	}
	if verify {
		installationStatus, verifyError := services.IssuerFactory(appCredentials).VerifyInstallation(command.Context())
		if verifyError != nil {
			return fmt.Errorf(statusVerificationFailedTemplateConstant, verifyError)
		}
		status.Installation = &installationStatus
	}

	return utils.WriteJSON(command.OutOrStdout(), status)
}

func (builder *CommandBuilder) runToken(command *cobra.Command, arguments []string) error {
	services, servicesError := builder.resolveServices(command.Context())
	if servicesError != nil {
		return servicesError
	}

	appCredentials, configured, resolveError := services.Resolver.Resolve(command.Context())
	if resolveError != nil {
		return resolveError
	}
	if !configured {
		return fmt.Errorf(notConfiguredTemplateConstant, ErrNotConfigured, credentials.ConfigurationError{}.SetupInstruction())
	}

	token, tokenError := services.IssuerFactory(appCredentials).Token(command.Context())
	if tokenError != nil {
		return tokenError
	}

	_, writeError := io.WriteString(command.OutOrStdout(), token+"\n")
	return writeError
}

func (builder *CommandBuilder) runClear(command *cobra.Command, arguments []string) error {
	services, servicesError := builder.resolveServices(command.Context())
	if servicesError != nil {
		return servicesError
	}
	if clearError := services.Store.Clear(); clearError != nil {
		return clearError
	}
	_, writeError := fmt.Fprintf(command.OutOrStdout(), clearCompletedTemplateConstant, services.StorePath)
	return writeError
}

func (builder *CommandBuilder) resolveServices(executionContext context.Context) (Services, error) {
	if builder.ServicesProvider == nil {
		return Services{}, errors.New(servicesNotConfiguredMessageConstant)
	}
	services, servicesError := builder.ServicesProvider(executionContext)
	if servicesError != nil {
		return Services{}, servicesError
	}
	if services.Resolver == nil || services.Store == nil || services.IssuerFactory == nil {
		return Services{}, errors.New(servicesNotConfiguredMessageConstant)
	}
	return services, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func parseSetupRequest(command *cobra.Command) (setup.Request, error) {
	appID, appIDError := command.Flags().GetInt64(appIDFlagNameConstant)
	if appIDError != nil {
		return setup.Request{}, appIDError
	}
	installationID, installationError := command.Flags().GetInt64(installationIDFlagNameConstant)
	if installationError != nil {
		return setup.Request{}, installationError
	}

	request := setup.Request{AppID: appID, InstallationID: installationID}
	stringFlags := []struct {
		name   string
		target *string
	}{
		{name: privateKeyFileFlagNameConstant, target: &request.PrivateKeyPath},
		{name: humanFlagNameConstant, target: &request.Human},
		{name: agentFlagNameConstant, target: &request.Agent},
		{name: repositoryFlagNameConstant, target: &request.Repository},
	}
	for _, stringFlag := range stringFlags {
		flagValue, flagError := command.Flags().GetString(stringFlag.name)
		if flagError != nil {
			return setup.Request{}, flagError
		}
		*stringFlag.target = flagValue
	}
	return request, nil
}

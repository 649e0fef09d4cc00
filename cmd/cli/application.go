package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/cmd/cli/auth"
	githubcmd "github.com/temirov/ghbot/cmd/cli/github"
	skillscmd "github.com/temirov/ghbot/cmd/cli/skills"
	"github.com/temirov/ghbot/cmd/cli/tool"
	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/dispatch"
	"github.com/temirov/ghbot/internal/execshell"
	"github.com/temirov/ghbot/internal/githubapp"
	"github.com/temirov/ghbot/internal/tools"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	applicationNameConstant                   = "ghbot"
	applicationShortDescriptionConstant       = "Run gh as a GitHub App bot identity"
	applicationLongDescriptionConstant        = "ghbot lets automation agents read and write GitHub as a GitHub App installation instead of the human's personal account. It mints installation tokens, injects them into gh, and exposes the operations as agent tools."
	configFileFlagNameConstant                = "config"
	configFileFlagUsageConstant               = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                  = "log-level"
	logLevelFlagUsageConstant                 = "Override the configured log level."
	logFormatFlagNameConstant                 = "log-format"
	logFormatFlagUsageConstant                = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant            = "common"
	commonLogLevelConfigKeyConstant           = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant          = commonConfigurationKeyConstant + ".log_format"
	githubConfigurationKeyConstant            = "github"
	githubAPIBaseURLConfigKeyConstant         = githubConfigurationKeyConstant + ".api_base_url"
	githubCLIPathConfigKeyConstant            = githubConfigurationKeyConstant + ".cli_path"
	githubTokenStalenessConfigKeyConstant     = githubConfigurationKeyConstant + ".token_staleness"
	githubExchangeTimeoutConfigKeyConstant    = githubConfigurationKeyConstant + ".exchange_timeout"
	githubAuthFailurePatternConfigKeyConstant = githubConfigurationKeyConstant + ".auth_failure_pattern"
	environmentPrefixConstant                 = "GHBOT"
	configurationNameConstant                 = "config"
	configurationTypeConstant                 = "yaml"
	configurationInitializedMessageConstant   = "configuration initialized"
	configurationLogLevelFieldConstant        = "log_level"
	configurationLogFormatFieldConstant       = "log_format"
	configurationFileFieldConstant            = "config_file"
	configurationLoadErrorTemplateConstant    = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant       = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant           = "unable to flush logger: %w"
	commandBuildErrorTemplateConstant         = "unable to build %s command: %w"
	defaultCLIPathConstant                    = "gh"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common      ApplicationCommonConfiguration      `mapstructure:"common"`
	GitHub      ApplicationGitHubConfiguration      `mapstructure:"github"`
	Credentials ApplicationCredentialsConfiguration `mapstructure:"credentials"`
	Skills      ApplicationSkillsConfiguration      `mapstructure:"skills"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationGitHubConfiguration configures the token issuer and the gh dispatcher.
type ApplicationGitHubConfiguration struct {
	APIBaseURL         string        `mapstructure:"api_base_url"`
	CLIPath            string        `mapstructure:"cli_path"`
	TokenStaleness     time.Duration `mapstructure:"token_staleness"`
	ExchangeTimeout    time.Duration `mapstructure:"exchange_timeout"`
	AuthFailurePattern string        `mapstructure:"auth_failure_pattern"`
}

// ApplicationCredentialsConfiguration locates the stored credentials file. An empty path selects the
// per-user config directory.
type ApplicationCredentialsConfiguration struct {
	FilePath string `mapstructure:"file_path"`
}

// ApplicationSkillsConfiguration lists directories searched before the bundled skills.
type ApplicationSkillsConfiguration struct {
	Directories  []string `mapstructure:"directories"`
	DefaultModel string   `mapstructure:"default_model"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	consoleLogger         *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
	environmentLookup     credentials.EnvironmentLookup
	secretBackend         credentials.SecretBackend
	commandRunner         execshell.CommandRunner
	httpClient            *http.Client
	services              *serviceContainer
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		utils.DefaultSearchPaths(applicationNameConstant),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
		consoleLogger:       zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	application.rootCommand = cobraCommand
	if registrationError := application.registerCommands(); registrationError != nil {
		application.logger.Error(registrationError.Error())
	}

	return application
}

func (application *Application) registerCommands() error {
	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	authBuilder := auth.CommandBuilder{
		LoggerProvider: loggerProvider,
		ServicesProvider: func(executionContext context.Context) (auth.Services, error) {
			return application.serviceContainer().authServices(executionContext)
		},
	}
	authCommand, authBuildError := authBuilder.Build()
	if authBuildError != nil {
		return fmt.Errorf(commandBuildErrorTemplateConstant, "auth", authBuildError)
	}
	application.rootCommand.AddCommand(authCommand)

	githubBuilder := githubcmd.CommandBuilder{
		LoggerProvider: loggerProvider,
		SessionProvider: func(executionContext context.Context) (githubcmd.Session, error) {
			return application.serviceContainer().githubSession(executionContext)
		},
	}
	githubCommands, githubBuildError := githubBuilder.Build()
	if githubBuildError != nil {
		return fmt.Errorf(commandBuildErrorTemplateConstant, "github", githubBuildError)
	}
	application.rootCommand.AddCommand(githubCommands...)

	toolBuilder := tool.CommandBuilder{
		LoggerProvider:      loggerProvider,
		DefinitionsProvider: tools.Definitions,
		InvokerProvider: func(executionContext context.Context) (tool.Invoker, error) {
			return application.serviceContainer().toolInvoker(executionContext)
		},
	}
	toolCommand, toolBuildError := toolBuilder.Build()
	if toolBuildError != nil {
		return fmt.Errorf(commandBuildErrorTemplateConstant, "tool", toolBuildError)
	}
	application.rootCommand.AddCommand(toolCommand)

	skillsBuilder := skillscmd.CommandBuilder{
		LoggerProvider: loggerProvider,
		CatalogProvider: func() (skillscmd.Catalog, error) {
			return application.serviceContainer().skillsCatalog()
		},
		DefaultModelProvider: func() string {
			return application.configuration.Skills.DefaultModel
		},
	}
	skillsCommand, skillsBuildError := skillsBuilder.Build()
	if skillsBuildError != nil {
		return fmt.Errorf(commandBuildErrorTemplateConstant, "skills", skillsBuildError)
	}
	application.rootCommand.AddCommand(skillsCommand)

	return nil
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:           string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:          string(utils.LogFormatStructured),
		githubAPIBaseURLConfigKeyConstant:         githubapp.DefaultAPIBaseURL,
		githubCLIPathConfigKeyConstant:            defaultCLIPathConstant,
		githubTokenStalenessConfigKeyConstant:     githubapp.DefaultStaleness,
		githubExchangeTimeoutConfigKeyConstant:    githubapp.DefaultExchangeTimeout,
		githubAuthFailurePatternConfigKeyConstant: dispatch.DefaultAuthFailurePattern,
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	loggerOutputs, loggerCreationError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = loggerOutputs.DiagnosticLogger
	application.consoleLogger = loggerOutputs.ConsoleLogger
	application.services = nil

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	return nil
}

func (application *Application) serviceContainer() *serviceContainer {
	if application.services == nil {
		application.services = newServiceContainer(serviceContainerDependencies{
			logger:              application.logger,
			consoleLogger:       application.consoleLogger,
			humanReadableLogs:   application.humanReadableLoggingEnabled(),
			configuration:       application.configuration,
			environmentLookup:   application.environmentLookup,
			secretBackend:       application.secretBackend,
			commandRunner:       application.commandRunner,
			httpClient:          application.httpClient,
			userConfigDirectory: os.UserConfigDir,
		})
	}
	return application.services
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) flushLogger() error {
	for _, logger := range []*zap.Logger{application.logger, application.consoleLogger} {
		if syncError := syncLoggerInstance(logger); syncError != nil {
			return syncError
		}
	}
	return nil
}

func syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

package cli

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/ghbot/cmd/cli/auth"
	githubcmd "github.com/temirov/ghbot/cmd/cli/github"
	skillscmd "github.com/temirov/ghbot/cmd/cli/skills"
	"github.com/temirov/ghbot/cmd/cli/tool"
	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/dispatch"
	"github.com/temirov/ghbot/internal/execshell"
	"github.com/temirov/ghbot/internal/githubapp"
	"github.com/temirov/ghbot/internal/githubauth"
	"github.com/temirov/ghbot/internal/githubcli"
	"github.com/temirov/ghbot/internal/setup"
	"github.com/temirov/ghbot/internal/skills"
	"github.com/temirov/ghbot/internal/tools"
	"github.com/temirov/ghbot/internal/ui"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	skillsDirectoryNameConstant          = "skills"
	authFailurePatternErrorTemplate      = "invalid github.auth_failure_pattern: %w"
	credentialsPathErrorTemplateConstant = "unable to locate credentials file: %w"
	ambientIdentityMessageConstant       = "github app credentials not configured; gh runs with its own authentication"
	botIdentityMessageConstant           = "running gh as github app installation"
	logFieldSourceConstant               = "source"
	logFieldAmbientSourceConstant        = "ambient_source"
	logFieldAppIDConstant                = "app_id"
	logFieldDefaultRepositoryConstant    = "default_repository"
	logFieldSkillDirectoriesConstant     = "skill_directories"
	skillsCatalogLoadedMessageConstant   = "skills catalog loaded"
	logFieldSkillCountConstant           = "skill_count"
	toolRegistryReadyMessageConstant     = "tool registry ready"
)

type serviceContainerDependencies struct {
	logger              *zap.Logger
	consoleLogger       *zap.Logger
	humanReadableLogs   bool
	configuration       ApplicationConfiguration
	environmentLookup   credentials.EnvironmentLookup
	secretBackend       credentials.SecretBackend
	commandRunner       execshell.CommandRunner
	httpClient          *http.Client
	userConfigDirectory func() (string, error)
}

// serviceContainer builds the runtime stack on first use. Skills and help commands never
// reach the keychain or gh.
type serviceContainer struct {
	dependencies serviceContainerDependencies

	credentialsResolved   bool
	appCredentials        credentials.AppCredentials
	credentialsConfigured bool
	issuer                *githubapp.Issuer
	shellExecutor         *execshell.ShellExecutor
	dispatcher            *dispatch.Dispatcher
	catalog               *skills.Catalog
}

func newServiceContainer(dependencies serviceContainerDependencies) *serviceContainer {
	if dependencies.logger == nil {
		dependencies.logger = zap.NewNop()
	}
	if dependencies.consoleLogger == nil {
		dependencies.consoleLogger = zap.NewNop()
	}
	return &serviceContainer{dependencies: dependencies}
}

func (container *serviceContainer) fileStore() (*credentials.FileStore, error) {
	configuredPath := strings.TrimSpace(container.dependencies.configuration.Credentials.FilePath)
	if len(configuredPath) > 0 {
		return credentials.NewFileStore(utils.ExpandHomeDirectory(configuredPath, nil)), nil
	}
	defaultPath, pathError := credentials.DefaultFilePath()
	if pathError != nil {
		return nil, fmt.Errorf(credentialsPathErrorTemplateConstant, pathError)
	}
	return credentials.NewFileStore(defaultPath), nil
}

func (container *serviceContainer) keychain() *credentials.Keychain {
	return credentials.NewKeychain(container.dependencies.secretBackend)
}

func (container *serviceContainer) resolver() (*credentials.Resolver, error) {
	fileStore, fileStoreError := container.fileStore()
	if fileStoreError != nil {
		return nil, fileStoreError
	}
	return credentials.NewResolver(
		container.dependencies.logger,
		credentials.NewEnvironmentStrategy(container.dependencies.environmentLookup),
		credentials.NewStoredStrategy(container.dependencies.logger, fileStore, container.keychain()),
	), nil
}

func (container *serviceContainer) resolveCredentials(executionContext context.Context) (credentials.AppCredentials, bool, error) {
	if container.credentialsResolved {
		return container.appCredentials, container.credentialsConfigured, nil
	}
	resolver, resolverError := container.resolver()
	if resolverError != nil {
		return credentials.AppCredentials{}, false, resolverError
	}
	appCredentials, configured, resolveError := resolver.Resolve(executionContext)
	if resolveError != nil {
		return credentials.AppCredentials{}, false, resolveError
	}
	container.appCredentials = appCredentials
	container.credentialsConfigured = configured
	container.credentialsResolved = true
	return appCredentials, configured, nil
}

func (container *serviceContainer) newIssuer(appCredentials credentials.AppCredentials) *githubapp.Issuer {
	githubConfiguration := container.dependencies.configuration.GitHub
	return githubapp.NewIssuer(
		appCredentials,
		githubapp.WithAPIBaseURL(githubConfiguration.APIBaseURL),
		githubapp.WithStaleness(githubConfiguration.TokenStaleness),
		githubapp.WithExchangeTimeout(githubConfiguration.ExchangeTimeout),
		githubapp.WithHTTPClient(container.dependencies.httpClient),
		githubapp.WithLogger(container.dependencies.logger),
	)
}

func (container *serviceContainer) botIssuer(appCredentials credentials.AppCredentials) *githubapp.Issuer {
	if container.issuer == nil {
		container.issuer = container.newIssuer(appCredentials)
	} else {
		container.issuer.SetCredentials(appCredentials)
	}
	return container.issuer
}

func (container *serviceContainer) ambientSource() string {
	return githubauth.AmbientSource(githubauth.Lookup(container.dependencies.environmentLookup))
}

func (container *serviceContainer) executor() (*execshell.ShellExecutor, error) {
	if container.shellExecutor != nil {
		return container.shellExecutor, nil
	}

	runner := container.dependencies.commandRunner
	if runner == nil {
		runner = execshell.NewOSCommandRunner(map[execshell.CommandName]string{
			execshell.CommandGitHub: container.dependencies.configuration.GitHub.CLIPath,
		})
	}

	var observers []execshell.CommandEventObserver
	if container.dependencies.humanReadableLogs {
		observers = append(observers, ui.NewConsoleCommandEventLogger(container.dependencies.consoleLogger))
	}

	shellExecutor, executorError := execshell.NewShellExecutor(container.dependencies.logger, runner, observers...)
	if executorError != nil {
		return nil, executorError
	}
	container.shellExecutor = shellExecutor
	return shellExecutor, nil
}

func (container *serviceContainer) botDispatcher(executionContext context.Context) (*dispatch.Dispatcher, credentials.AppCredentials, error) {
	appCredentials, configured, resolveError := container.resolveCredentials(executionContext)
	if resolveError != nil {
		return nil, credentials.AppCredentials{}, resolveError
	}
	if container.dispatcher != nil {
		return container.dispatcher, appCredentials, nil
	}

	shellExecutor, executorError := container.executor()
	if executorError != nil {
		return nil, credentials.AppCredentials{}, executorError
	}

	var options []dispatch.Option
	if pattern := strings.TrimSpace(container.dependencies.configuration.GitHub.AuthFailurePattern); len(pattern) > 0 {
		compiledPattern, compileError := regexp.Compile(pattern)
		if compileError != nil {
			return nil, credentials.AppCredentials{}, fmt.Errorf(authFailurePatternErrorTemplate, compileError)
		}
		options = append(options, dispatch.WithAuthFailurePattern(compiledPattern))
	}

	var tokenProvider dispatch.TokenProvider
	if configured {
		tokenProvider = container.botIssuer(appCredentials)
		container.dependencies.logger.Debug(botIdentityMessageConstant,
			zap.String(logFieldSourceConstant, string(appCredentials.Source)),
			zap.Int64(logFieldAppIDConstant, appCredentials.AppID),
		)
	} else {
		container.dependencies.logger.Info(ambientIdentityMessageConstant, zap.String(logFieldAmbientSourceConstant, container.ambientSource()))
	}

	dispatcher, dispatcherError := dispatch.NewDispatcher(container.dependencies.logger, shellExecutor, tokenProvider, options...)
	if dispatcherError != nil {
		return nil, credentials.AppCredentials{}, dispatcherError
	}
	container.dispatcher = dispatcher
	return dispatcher, appCredentials, nil
}

func (container *serviceContainer) githubSession(executionContext context.Context) (githubcmd.Session, error) {
	dispatcher, appCredentials, dispatcherError := container.botDispatcher(executionContext)
	if dispatcherError != nil {
		return githubcmd.Session{}, dispatcherError
	}
	client, clientError := githubcli.NewClient(dispatcher)
	if clientError != nil {
		return githubcmd.Session{}, clientError
	}
	return githubcmd.Session{
		Operations:        client,
		DefaultRepository: appCredentials.Identity.Repository,
		BotIdentity:       dispatcher.BotIdentityActive(),
	}, nil
}

func (container *serviceContainer) toolInvoker(executionContext context.Context) (tool.Invoker, error) {
	session, sessionError := container.githubSession(executionContext)
	if sessionError != nil {
		return nil, sessionError
	}
	container.dependencies.logger.Debug(toolRegistryReadyMessageConstant, zap.String(logFieldDefaultRepositoryConstant, session.DefaultRepository))
	return tools.NewRegistry(container.dependencies.logger, session.Operations, session.DefaultRepository)
}

func (container *serviceContainer) skillsCatalog() (skillscmd.Catalog, error) {
	if container.catalog != nil {
		return container.catalog, nil
	}

	directories := make([]string, 0, len(container.dependencies.configuration.Skills.Directories)+1)
	for _, directory := range container.dependencies.configuration.Skills.Directories {
		directories = append(directories, utils.ExpandHomeDirectory(directory, nil))
	}
	if container.dependencies.userConfigDirectory != nil {
		if userConfigDirectory, directoryError := container.dependencies.userConfigDirectory(); directoryError == nil && len(userConfigDirectory) > 0 {
			directories = append(directories, filepath.Join(userConfigDirectory, applicationNameConstant, skillsDirectoryNameConstant))
		}
	}

	catalog, loadError := skills.Load(container.dependencies.logger, skills.Embedded(), directories)
	if loadError != nil {
		return nil, loadError
	}
	container.dependencies.logger.Debug(skillsCatalogLoadedMessageConstant,
		zap.Strings(logFieldSkillDirectoriesConstant, directories),
		zap.Int(logFieldSkillCountConstant, len(catalog.Names())),
	)
	container.catalog = catalog
	return catalog, nil
}

func (container *serviceContainer) authServices(executionContext context.Context) (auth.Services, error) {
	resolver, resolverError := container.resolver()
	if resolverError != nil {
		return auth.Services{}, resolverError
	}
	fileStore, fileStoreError := container.fileStore()
	if fileStoreError != nil {
		return auth.Services{}, fileStoreError
	}
	setupService, setupError := setup.NewService(container.dependencies.logger, fileStore, container.keychain())
	if setupError != nil {
		return auth.Services{}, setupError
	}

	services := auth.Services{
		Resolver: resolver,
		IssuerFactory: func(appCredentials credentials.AppCredentials) auth.TokenIssuer {
			return container.newIssuer(appCredentials)
		},
		Store:         setupService,
		StorePath:     fileStore.Path(),
		AmbientSource: container.ambientSource(),
	}

	shellExecutor, executorError := container.executor()
	if executorError == nil {
		if ambientClient, clientError := githubcli.NewClient(shellExecutor); clientError == nil {
			services.LoginLookup = ambientClient
		}
	}
	return services, nil
}

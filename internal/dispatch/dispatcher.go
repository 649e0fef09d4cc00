package dispatch

import (
	"context"
	"errors"
	"regexp"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/execshell"
)

// DefaultAuthFailurePattern matches gh stderr that indicates a rejected token.
const DefaultAuthFailurePattern = `(?i)401|Bad credentials|authentication|unauthorized`

// TokenEnvironmentVariable is the variable gh reads its token from.
const TokenEnvironmentVariable = "GH_TOKEN"

const (
	maximumAttemptsConstant        = 2
	authRetryMessageConstant       = "gh rejected installation token; retrying with a fresh token"
	ambientDispatchMessageConstant = "dispatching gh with ambient credentials"
	logFieldAttemptConstant        = "attempt"
	logFieldArgumentsConstant      = "arguments"
)

var (
	// ErrExecutorNotConfigured indicates the dispatcher has no command executor.
	ErrExecutorNotConfigured = errors.New("dispatch: github command executor not configured")
	// ErrLoggerNotConfigured indicates the dispatcher has no logger.
	ErrLoggerNotConfigured = errors.New("dispatch: logger not configured")
)

// GitHubCommandExecutor runs gh commands.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// TokenProvider owns the installation token cache.
type TokenProvider interface {
	Token(executionContext context.Context) (string, error)
	Invalidate()
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithAuthFailurePattern replaces the stderr classifier; nil keeps the default.
func WithAuthFailurePattern(pattern *regexp.Regexp) Option {
	return func(dispatcher *Dispatcher) {
		if pattern != nil {
			dispatcher.authFailurePattern = pattern
		}
	}
}

// Dispatcher runs gh under the bot identity when a token provider is present, otherwise under
// whatever credentials gh already has.
type Dispatcher struct {
	executor           GitHubCommandExecutor
	tokenProvider      TokenProvider
	authFailurePattern *regexp.Regexp
	logger             *zap.Logger
}

// NewDispatcher constructs a dispatcher. A nil tokenProvider selects ambient mode.
func NewDispatcher(logger *zap.Logger, executor GitHubCommandExecutor, tokenProvider TokenProvider, options ...Option) (*Dispatcher, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	dispatcher := &Dispatcher{
		executor:           executor,
		tokenProvider:      tokenProvider,
		authFailurePattern: regexp.MustCompile(DefaultAuthFailurePattern),
		logger:             logger,
	}
	for _, option := range options {
		option(dispatcher)
	}
	return dispatcher, nil
}

// BotIdentityActive reports whether commands run with an injected installation token.
func (dispatcher *Dispatcher) BotIdentityActive() bool {
	return dispatcher.tokenProvider != nil
}

// ExecuteGitHubCLI runs gh. With bot identity active a failure classified as an authentication
// failure invalidates the token and retries exactly once; the second failure is returned unchanged.
func (dispatcher *Dispatcher) ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	if !dispatcher.BotIdentityActive() {
		dispatcher.logger.Debug(ambientDispatchMessageConstant, zap.Strings(logFieldArgumentsConstant, details.Arguments))
		return dispatcher.executor.ExecuteGitHubCLI(executionContext, details)
	}

	var executionResult execshell.ExecutionResult
	attempt := 0
	retryError := retry.Do(
		func() error {
			if attempt > 0 {
				dispatcher.tokenProvider.Invalidate()
			}
			attempt++

			token, tokenError := dispatcher.tokenProvider.Token(executionContext)
			if tokenError != nil {
				return tokenError
			}
			result, executionError := dispatcher.executor.ExecuteGitHubCLI(executionContext, withToken(details, token))
			if executionError != nil {
				return executionError
			}
			executionResult = result
			return nil
		},
		retry.Attempts(maximumAttemptsConstant),
		retry.RetryIf(dispatcher.IsAuthenticationFailure),
		retry.LastErrorOnly(true),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.Context(executionContext),
		retry.OnRetry(func(attemptNumber uint, attemptError error) {
			if int(attemptNumber) < maximumAttemptsConstant-1 {
				dispatcher.logger.Info(authRetryMessageConstant, zap.Uint(logFieldAttemptConstant, attemptNumber+1), zap.Error(attemptError))
			}
		}),
	)
	if retryError != nil {
		return execshell.ExecutionResult{}, retryError
	}
	return executionResult, nil
}

// IsAuthenticationFailure reports whether err is a gh failure whose stderr matches the auth pattern.
func (dispatcher *Dispatcher) IsAuthenticationFailure(err error) bool {
	var commandFailedError execshell.CommandFailedError
	if !errors.As(err, &commandFailedError) {
		return false
	}
	return dispatcher.authFailurePattern.MatchString(commandFailedError.Result.StandardError)
}

func withToken(details execshell.CommandDetails, token string) execshell.CommandDetails {
	environment := make(map[string]string, len(details.EnvironmentVariables)+1)
	for key, value := range details.EnvironmentVariables {
		environment[key] = value
	}
	environment[TokenEnvironmentVariable] = token
	details.EnvironmentVariables = environment
	return details
}

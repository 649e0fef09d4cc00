package githubcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/temirov/ghbot/internal/execshell"
)

const (
	issueSubcommandConstant                 = "issue"
	pullRequestSubcommandConstant           = "pr"
	apiSubcommandConstant                   = "api"
	listSubcommandConstant                  = "list"
	viewSubcommandConstant                  = "view"
	commentSubcommandConstant               = "comment"
	createSubcommandConstant                = "create"
	reviewSubcommandConstant                = "review"
	jsonFlagConstant                        = "--json"
	repoFlagConstant                        = "--repo"
	stateFlagConstant                       = "--state"
	limitFlagConstant                       = "--limit"
	labelFlagConstant                       = "--label"
	assigneeFlagConstant                    = "--assignee"
	searchFlagConstant                      = "--search"
	titleFlagConstant                       = "--title"
	bodyFileFlagConstant                    = "--body-file"
	stdinReferenceConstant                  = "-"
	repositoryFieldNameConstant             = "repository"
	numberFieldNameConstant                 = "number"
	bodyFieldNameConstant                   = "body"
	titleFieldNameConstant                  = "title"
	stateFieldNameConstant                  = "state"
	limitFieldNameConstant                  = "limit"
	requiredValueMessageConstant            = "value required"
	positiveValueMessageConstant            = "must be positive"
	repositoryFormatMessageConstant         = "expected owner/name"
	unsupportedValueTemplateConstant        = "unsupported value %q"
	executorNotConfiguredMessageConstant    = "github cli executor not configured"
	defaultResultLimitConstant              = 30
	maximumResultLimitConstant              = 1000
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	repositorySeparatorConstant             = "/"
)

// OperationName describes a named GitHub CLI workflow supported by the client.
type OperationName string

// ItemState filters issues and pull requests by state.
type ItemState string

// Item state enumerations accepted by gh list commands.
const (
	ItemStateOpen   ItemState = ItemState("open")
	ItemStateClosed ItemState = ItemState("closed")
	ItemStateMerged ItemState = ItemState("merged")
	ItemStateAll    ItemState = ItemState("all")
)

// GitHubCommandExecutor is the minimal interface required from execshell.ShellExecutor or dispatch.Dispatcher.
type GitHubCommandExecutor interface {
	ExecuteGitHubCLI(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Client coordinates GitHub CLI invocations.
type Client struct {
	executor GitHubCommandExecutor
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for GitHub CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates gh printed something other than the expected output.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// NewClient constructs a GitHub CLI client.
func NewClient(executor GitHubCommandExecutor) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	return &Client{executor: executor}, nil
}

// runJSON executes gh and validates that stdout is JSON without modelling it.
func (client *Client) runJSON(executionContext context.Context, operation OperationName, details execshell.CommandDetails) (json.RawMessage, error) {
	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, details)
	if executionError != nil {
		return nil, OperationError{Operation: operation, Cause: executionError}
	}

	trimmedOutput := strings.TrimSpace(executionResult.StandardOutput)
	if !json.Valid([]byte(trimmedOutput)) {
		return nil, ResponseDecodingError{Operation: operation, Cause: fmt.Errorf(unsupportedValueTemplateConstant, truncate(trimmedOutput))}
	}
	return json.RawMessage(trimmedOutput), nil
}

// runText executes gh and returns trimmed stdout, typically the URL of a created object.
func (client *Client) runText(executionContext context.Context, operation OperationName, details execshell.CommandDetails) (string, error) {
	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, details)
	if executionError != nil {
		return "", OperationError{Operation: operation, Cause: executionError}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// normalizeRepository accepts an empty value, meaning gh resolves the repository from the working directory.
func normalizeRepository(repository string) (string, error) {
	trimmedRepository := strings.TrimSpace(repository)
	if len(trimmedRepository) == 0 {
		return "", nil
	}
	owner, name, found := strings.Cut(trimmedRepository, repositorySeparatorConstant)
	if !found || len(owner) == 0 || len(name) == 0 || strings.Contains(name, repositorySeparatorConstant) {
		return "", InvalidInputError{FieldName: repositoryFieldNameConstant, Message: repositoryFormatMessageConstant}
	}
	return trimmedRepository, nil
}

func repositoryArguments(repository string) []string {
	if len(repository) == 0 {
		return nil
	}
	return []string{repoFlagConstant, repository}
}

func validateNumber(number int) error {
	if number <= 0 {
		return InvalidInputError{FieldName: numberFieldNameConstant, Message: positiveValueMessageConstant}
	}
	return nil
}

func requireText(fieldName string, value string) error {
	if len(strings.TrimSpace(value)) == 0 {
		return InvalidInputError{FieldName: fieldName, Message: requiredValueMessageConstant}
	}
	return nil
}

func resolveLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, InvalidInputError{FieldName: limitFieldNameConstant, Message: positiveValueMessageConstant}
	case limit == 0:
		return defaultResultLimitConstant, nil
	case limit > maximumResultLimitConstant:
		return maximumResultLimitConstant, nil
	default:
		return limit, nil
	}
}

func resolveState(state ItemState, allowed ...ItemState) (ItemState, error) {
	if len(state) == 0 {
		return ItemStateOpen, nil
	}
	for _, allowedState := range allowed {
		if state == allowedState {
			return state, nil
		}
	}
	return "", InvalidInputError{FieldName: stateFieldNameConstant, Message: fmt.Sprintf(unsupportedValueTemplateConstant, state)}
}

func appendRepeated(arguments []string, flag string, values []string) []string {
	for _, value := range values {
		trimmedValue := strings.TrimSpace(value)
		if len(trimmedValue) == 0 {
			continue
		}
		arguments = append(arguments, flag, trimmedValue)
	}
	return arguments
}

func appendOptional(arguments []string, flag string, value string) []string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return arguments
	}
	return append(arguments, flag, trimmedValue)
}

func truncate(value string) string {
	const previewLength = 80
	if len(value) <= previewLength {
		return value
	}
	return value[:previewLength] + "..."
}

func formatNumber(number int) string {
	return strconv.Itoa(number)
}

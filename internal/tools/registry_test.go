package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/execshell"
	"github.com/temirov/ghbot/internal/githubapp"
	"github.com/temirov/ghbot/internal/githubcli"
	"github.com/temirov/ghbot/internal/tools"
)

const (
	testDefaultRepositoryConstant = "owner/default"
	testRequestedRepository       = "owner/example"
)

type recordedCall struct {
	operation  string
	repository string
	number     int
	body       string
	issueList  githubcli.IssueListOptions
	review     githubcli.PullRequestReviewOptions
}

type fakeOperations struct {
	calls        []recordedCall
	failure      error
	panicMessage string
}

func (operations *fakeOperations) record(call recordedCall) error {
	if len(operations.panicMessage) > 0 {
		panic(operations.panicMessage)
	}
	operations.calls = append(operations.calls, call)
	return operations.failure
}

func (operations *fakeOperations) ListIssues(_ context.Context, repository string, options githubcli.IssueListOptions) (json.RawMessage, error) {
	if recordError := operations.record(recordedCall{operation: "ListIssues", repository: repository, issueList: options}); recordError != nil {
		return nil, recordError
	}
	return json.RawMessage(`[{"number":7}]`), nil
}

func (operations *fakeOperations) ViewIssue(_ context.Context, repository string, number int, _ bool) (json.RawMessage, error) {
	if recordError := operations.record(recordedCall{operation: "ViewIssue", repository: repository, number: number}); recordError != nil {
		return nil, recordError
	}
	return json.RawMessage(`{"number":7}`), nil
}

func (operations *fakeOperations) CommentIssue(_ context.Context, repository string, number int, body string) (string, error) {
	return "https://github.com/owner/example/issues/7#issuecomment-1", operations.record(recordedCall{operation: "CommentIssue", repository: repository, number: number, body: body})
}

func (operations *fakeOperations) CreateIssue(_ context.Context, repository string, options githubcli.IssueCreateOptions) (string, error) {
	return "https://github.com/owner/example/issues/8", operations.record(recordedCall{operation: "CreateIssue", repository: repository, body: options.Body})
}

func (operations *fakeOperations) ListPullRequests(_ context.Context, repository string, _ githubcli.PullRequestListOptions) (json.RawMessage, error) {
	return json.RawMessage(`[]`), operations.record(recordedCall{operation: "ListPullRequests", repository: repository})
}

func (operations *fakeOperations) ViewPullRequest(_ context.Context, repository string, number int, _ bool) (json.RawMessage, error) {
	return json.RawMessage(`{}`), operations.record(recordedCall{operation: "ViewPullRequest", repository: repository, number: number})
}

func (operations *fakeOperations) CommentPullRequest(_ context.Context, repository string, number int, body string) (string, error) {
	return "https://github.com/owner/example/pull/9#issuecomment-2", operations.record(recordedCall{operation: "CommentPullRequest", repository: repository, number: number, body: body})
}

func (operations *fakeOperations) CreatePullRequest(_ context.Context, repository string, options githubcli.PullRequestCreateOptions) (string, error) {
	return "https://github.com/owner/example/pull/9", operations.record(recordedCall{operation: "CreatePullRequest", repository: repository, body: options.Body})
}

func (operations *fakeOperations) ReviewPullRequest(_ context.Context, repository string, number int, options githubcli.PullRequestReviewOptions) error {
	return operations.record(recordedCall{operation: "ReviewPullRequest", repository: repository, number: number, review: options})
}

func (operations *fakeOperations) FetchFile(_ context.Context, repository string, filePath string, ref string) (githubcli.FileContent, error) {
	return githubcli.FileContent{Repository: repository, Path: filePath, Ref: ref, Content: "hello"}, operations.record(recordedCall{operation: "FetchFile", repository: repository})
}

func newRegistry(testInstance *testing.T, operations *fakeOperations) *tools.Registry {
	testInstance.Helper()
	registry, creationError := tools.NewRegistry(zap.NewNop(), operations, testDefaultRepositoryConstant)
	require.NoError(testInstance, creationError)
	return registry
}

func TestNewRegistryValidation(testInstance *testing.T) {
	_, creationError := tools.NewRegistry(zap.NewNop(), nil, "")
	require.ErrorIs(testInstance, creationError, tools.ErrOperationsNotConfigured)
}

func TestRegistryInvokeSuccess(testInstance *testing.T) {
	testCases := []struct {
		name               string
		tool               string
		parameters         map[string]any
		expectedOutput     string
		expectedOperation  string
		expectedRepository string
	}{
		{
			name:               "issue_list_default_repository",
			tool:               tools.ToolIssueList,
			parameters:         map[string]any{"state": "closed", "labels": []any{"bug"}, "limit": 5},
			expectedOutput:     `[{"number":7}]`,
			expectedOperation:  "ListIssues",
			expectedRepository: testDefaultRepositoryConstant,
		},
		{
			name:               "issue_view_json_number",
			tool:               tools.ToolIssueView,
			parameters:         map[string]any{"repo": testRequestedRepository, "number": float64(7)},
			expectedOutput:     `{"number":7}`,
			expectedOperation:  "ViewIssue",
			expectedRepository: testRequestedRepository,
		},
		{
			name:               "issue_comment",
			tool:               tools.ToolIssueComment,
			parameters:         map[string]any{"number": float64(7), "body": "On it"},
			expectedOutput:     `{"url":"https://github.com/owner/example/issues/7#issuecomment-1"}`,
			expectedOperation:  "CommentIssue",
			expectedRepository: testDefaultRepositoryConstant,
		},
		{
			name:               "pull_request_review",
			tool:               tools.ToolPullRequestReview,
			parameters:         map[string]any{"repo": testRequestedRepository, "number": 9, "event": "approve"},
			expectedOutput:     `{"number":9,"event":"approve"}`,
			expectedOperation:  "ReviewPullRequest",
			expectedRepository: testRequestedRepository,
		},
		{
			name:               "file_get",
			tool:               tools.ToolFileGet,
			parameters:         map[string]any{"repo": testRequestedRepository, "path": "README.md", "ref": "main"},
			expectedOutput:     `{"repository":"owner/example","path":"README.md","ref":"main","content":"hello"}`,
			expectedOperation:  "FetchFile",
			expectedRepository: testRequestedRepository,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			operations := &fakeOperations{}
			result := newRegistry(testInstance, operations).Invoke(context.Background(), testCase.tool, testCase.parameters)

			require.True(testInstance, result.Success, result.Error)
			require.Empty(testInstance, result.ErrorKind)
			require.JSONEq(testInstance, testCase.expectedOutput, string(result.Output))
			require.Len(testInstance, operations.calls, 1)
			require.Equal(testInstance, testCase.expectedOperation, operations.calls[0].operation)
			require.Equal(testInstance, testCase.expectedRepository, operations.calls[0].repository)
		})
	}
}

func TestRegistryInvokeDecodesTypedParameters(testInstance *testing.T) {
	operations := &fakeOperations{}
	result := newRegistry(testInstance, operations).Invoke(context.Background(), tools.ToolIssueList, map[string]any{
		"state":    "all",
		"labels":   []any{"bug", "p1"},
		"assignee": "octocat",
		"limit":    float64(15),
	})
	require.True(testInstance, result.Success, result.Error)
	require.Equal(testInstance, githubcli.IssueListOptions{
		State:    githubcli.ItemStateAll,
		Labels:   []string{"bug", "p1"},
		Assignee: "octocat",
		Limit:    15,
	}, operations.calls[0].issueList)
}

func TestRegistryInvokeFailures(testInstance *testing.T) {
	commandFailure := execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGitHub, Details: execshell.CommandDetails{Arguments: []string{"issue", "list"}}},
		Result:  execshell.ExecutionResult{ExitCode: 1, StandardError: "HTTP 404: Not Found"},
	}

	testCases := []struct {
		name          string
		tool          string
		parameters    map[string]any
		failure       error
		panicMessage  string
		expectedKind  tools.ErrorKind
		errorContains string
	}{
		{
			name:         "unknown_tool",
			tool:         "github_repo_delete",
			expectedKind: tools.ErrorKindUnknownTool,
		},
		{
			name:          "unexpected_parameter",
			tool:          tools.ToolIssueList,
			parameters:    map[string]any{"colour": "red"},
			expectedKind:  tools.ErrorKindInvalidInput,
			errorContains: "colour",
		},
		{
			name:         "wrong_parameter_type",
			tool:         tools.ToolIssueView,
			parameters:   map[string]any{"number": map[string]any{"value": 1}},
			expectedKind: tools.ErrorKindInvalidInput,
		},
		{
			name:          "fractional_number",
			tool:          tools.ToolIssueView,
			parameters:    map[string]any{"number": 1.5},
			expectedKind:  tools.ErrorKindInvalidInput,
			errorContains: "whole number",
		},
		{
			name:         "string_number",
			tool:         tools.ToolIssueView,
			parameters:   map[string]any{"number": "7"},
			expectedKind: tools.ErrorKindInvalidInput,
		},
		{
			name:         "operation_invalid_input",
			tool:         tools.ToolIssueView,
			parameters:   map[string]any{"number": 7},
			failure:      githubcli.InvalidInputError{FieldName: "number", Message: "must be positive"},
			expectedKind: tools.ErrorKindInvalidInput,
		},
		{
			name:          "command_failure",
			tool:          tools.ToolIssueList,
			failure:       githubcli.OperationError{Operation: "ListIssues", Cause: commandFailure},
			expectedKind:  tools.ErrorKindCommand,
			errorContains: "HTTP 404: Not Found",
		},
		{
			name:         "configuration_failure",
			tool:         tools.ToolIssueList,
			failure:      githubcli.OperationError{Operation: "ListIssues", Cause: credentials.ConfigurationError{Field: "private key", Message: "not configured"}},
			expectedKind: tools.ErrorKindConfiguration,
		},
		{
			name:          "auth_exchange_failure",
			tool:          tools.ToolIssueList,
			failure:       githubcli.OperationError{Operation: "ListIssues", Cause: githubapp.AuthExchangeError{Operation: "installation token exchange", StatusCode: 401, Body: "bad jwt"}},
			expectedKind:  tools.ErrorKindAuthExchange,
			errorContains: "401",
		},
		{
			name:         "unexpected_failure",
			tool:         tools.ToolIssueList,
			failure:      errors.New("boom"),
			expectedKind: tools.ErrorKindInternal,
		},
		{
			name:         "panic_recovered",
			tool:         tools.ToolIssueList,
			panicMessage: "nil map",
			expectedKind: tools.ErrorKindInternal,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			operations := &fakeOperations{failure: testCase.failure, panicMessage: testCase.panicMessage}
			var result tools.Result
			require.NotPanics(testInstance, func() {
				result = newRegistry(testInstance, operations).Invoke(context.Background(), testCase.tool, testCase.parameters)
			})

			require.False(testInstance, result.Success)
			require.Equal(testInstance, testCase.expectedKind, result.ErrorKind)
			require.NotEmpty(testInstance, result.Error)
			require.Empty(testInstance, result.Output)
			if len(testCase.errorContains) > 0 {
				require.Contains(testInstance, result.Error, testCase.errorContains)
			}
		})
	}
}

func TestRegistrySchemas(testInstance *testing.T) {
	registry := newRegistry(testInstance, &fakeOperations{})
	definitions := registry.Schemas()
	require.Len(testInstance, definitions, len(registry.Names()))
	staticDefinitions := tools.Definitions()
	require.Len(testInstance, staticDefinitions, len(definitions))
	for index, definition := range definitions {
		require.Equal(testInstance, definition.Name, staticDefinitions[index].Name)
	}

	var reviewDefinition tools.Definition
	for _, definition := range definitions {
		require.NotEmpty(testInstance, definition.Description)
		require.NotNil(testInstance, definition.InputSchema)
		if definition.Name == tools.ToolPullRequestReview {
			reviewDefinition = definition
		}
	}

	encodedSchema, encodeError := json.Marshal(reviewDefinition.InputSchema)
	require.NoError(testInstance, encodeError)

	var schemaDocument struct {
		Type       string                    `json:"type"`
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	require.NoError(testInstance, json.Unmarshal(encodedSchema, &schemaDocument))
	require.Equal(testInstance, "object", schemaDocument.Type)
	require.ElementsMatch(testInstance, []string{"number", "event"}, schemaDocument.Required)
	require.Contains(testInstance, schemaDocument.Properties, "repo")
	require.Equal(testInstance, []any{"approve", "request-changes", "comment"}, schemaDocument.Properties["event"]["enum"])
}

package githubcli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/temirov/ghbot/internal/execshell"
)

const (
	issueListJSONFieldsConstant       = "number,title,state,author,labels,assignees,url,updatedAt"
	issueViewJSONFieldsConstant       = "number,title,body,state,author,labels,assignees,milestone,url,createdAt,updatedAt,closedAt"
	issueCommentsJSONFieldConstant    = ",comments"
	listIssuesOperationNameConstant   = OperationName("ListIssues")
	viewIssueOperationNameConstant    = OperationName("ViewIssue")
	commentIssueOperationNameConstant = OperationName("CommentIssue")
	createIssueOperationNameConstant  = OperationName("CreateIssue")
)

// IssueListOptions configures ListIssues queries.
type IssueListOptions struct {
	State    ItemState
	Labels   []string
	Assignee string
	Search   string
	Limit    int
}

// IssueCreateOptions describes a new issue.
type IssueCreateOptions struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// ListIssues enumerates issues using gh issue list.
func (client *Client) ListIssues(executionContext context.Context, repository string, options IssueListOptions) (json.RawMessage, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return nil, repositoryError
	}
	state, stateError := resolveState(options.State, ItemStateOpen, ItemStateClosed, ItemStateAll)
	if stateError != nil {
		return nil, stateError
	}
	resultLimit, limitError := resolveLimit(options.Limit)
	if limitError != nil {
		return nil, limitError
	}

	arguments := []string{issueSubcommandConstant, listSubcommandConstant}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, stateFlagConstant, string(state), limitFlagConstant, formatNumber(resultLimit))
	arguments = appendRepeated(arguments, labelFlagConstant, options.Labels)
	arguments = appendOptional(arguments, assigneeFlagConstant, options.Assignee)
	arguments = appendOptional(arguments, searchFlagConstant, options.Search)
	arguments = append(arguments, jsonFlagConstant, issueListJSONFieldsConstant)

	return client.runJSON(executionContext, listIssuesOperationNameConstant, execshell.CommandDetails{Arguments: arguments})
}

// ViewIssue reads a single issue, optionally with its comments.
func (client *Client) ViewIssue(executionContext context.Context, repository string, number int, includeComments bool) (json.RawMessage, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return nil, repositoryError
	}
	if numberError := validateNumber(number); numberError != nil {
		return nil, numberError
	}

	jsonFields := issueViewJSONFieldsConstant
	if includeComments {
		jsonFields += issueCommentsJSONFieldConstant
	}

	arguments := []string{issueSubcommandConstant, viewSubcommandConstant, formatNumber(number)}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, jsonFlagConstant, jsonFields)

	return client.runJSON(executionContext, viewIssueOperationNameConstant, execshell.CommandDetails{Arguments: arguments})
}

// CommentIssue adds a comment and returns its URL. The body travels over stdin.
func (client *Client) CommentIssue(executionContext context.Context, repository string, number int, body string) (string, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return "", repositoryError
	}
	if numberError := validateNumber(number); numberError != nil {
		return "", numberError
	}
	if bodyError := requireText(bodyFieldNameConstant, body); bodyError != nil {
		return "", bodyError
	}

	arguments := []string{issueSubcommandConstant, commentSubcommandConstant, formatNumber(number)}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, bodyFileFlagConstant, stdinReferenceConstant)

	return client.runText(executionContext, commentIssueOperationNameConstant, execshell.CommandDetails{Arguments: arguments, StandardInput: []byte(body)})
}

// CreateIssue opens an issue and returns its URL.
func (client *Client) CreateIssue(executionContext context.Context, repository string, options IssueCreateOptions) (string, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return "", repositoryError
	}
	if titleError := requireText(titleFieldNameConstant, options.Title); titleError != nil {
		return "", titleError
	}

	arguments := []string{issueSubcommandConstant, createSubcommandConstant}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, titleFlagConstant, strings.TrimSpace(options.Title), bodyFileFlagConstant, stdinReferenceConstant)
	arguments = appendRepeated(arguments, labelFlagConstant, options.Labels)
	arguments = appendRepeated(arguments, assigneeFlagConstant, options.Assignees)

	return client.runText(executionContext, createIssueOperationNameConstant, execshell.CommandDetails{Arguments: arguments, StandardInput: []byte(options.Body)})
}

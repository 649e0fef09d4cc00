package githubcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/temirov/ghbot/internal/execshell"
)

const (
	pullRequestListJSONFieldsConstant       = "number,title,state,author,headRefName,baseRefName,isDraft,url,updatedAt"
	pullRequestViewJSONFieldsConstant       = "number,title,body,state,author,headRefName,baseRefName,isDraft,mergeable,reviewDecision,additions,deletions,changedFiles,files,url,createdAt,updatedAt"
	pullRequestDiscussionJSONFieldsConstant = ",comments,reviews"
	baseFlagConstant                        = "--base"
	headFlagConstant                        = "--head"
	draftFlagConstant                       = "--draft"
	approveFlagConstant                     = "--approve"
	requestChangesFlagConstant              = "--request-changes"
	commentFlagConstant                     = "--comment"
	reviewEventFieldNameConstant            = "event"
	listPullRequestsOperationNameConstant   = OperationName("ListPullRequests")
	viewPullRequestOperationNameConstant    = OperationName("ViewPullRequest")
	commentPullRequestOperationNameConstant = OperationName("CommentPullRequest")
	createPullRequestOperationNameConstant  = OperationName("CreatePullRequest")
	reviewPullRequestOperationNameConstant  = OperationName("ReviewPullRequest")
)

// ReviewEvent selects the kind of pull request review.
type ReviewEvent string

// Review events supported by gh pr review.
const (
	ReviewEventApprove        ReviewEvent = ReviewEvent("approve")
	ReviewEventRequestChanges ReviewEvent = ReviewEvent("request-changes")
	ReviewEventComment        ReviewEvent = ReviewEvent("comment")
)

// PullRequestListOptions configures ListPullRequests queries.
type PullRequestListOptions struct {
	State      ItemState
	BaseBranch string
	HeadBranch string
	Search     string
	Limit      int
}

// PullRequestCreateOptions describes a new pull request.
type PullRequestCreateOptions struct {
	Title      string
	Body       string
	BaseBranch string
	HeadBranch string
	Draft      bool
}

// PullRequestReviewOptions describes a review submission.
type PullRequestReviewOptions struct {
	Event ReviewEvent
	Body  string
}

// ListPullRequests enumerates pull requests using gh pr list.
func (client *Client) ListPullRequests(executionContext context.Context, repository string, options PullRequestListOptions) (json.RawMessage, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return nil, repositoryError
	}
	state, stateError := resolveState(options.State, ItemStateOpen, ItemStateClosed, ItemStateMerged, ItemStateAll)
	if stateError != nil {
		return nil, stateError
	}
	resultLimit, limitError := resolveLimit(options.Limit)
	if limitError != nil {
		return nil, limitError
	}

	arguments := []string{pullRequestSubcommandConstant, listSubcommandConstant}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, stateFlagConstant, string(state), limitFlagConstant, formatNumber(resultLimit))
	arguments = appendOptional(arguments, baseFlagConstant, options.BaseBranch)
	arguments = appendOptional(arguments, headFlagConstant, options.HeadBranch)
	arguments = appendOptional(arguments, searchFlagConstant, options.Search)
	arguments = append(arguments, jsonFlagConstant, pullRequestListJSONFieldsConstant)

	return client.runJSON(executionContext, listPullRequestsOperationNameConstant, execshell.CommandDetails{Arguments: arguments})
}

// ViewPullRequest reads a pull request, optionally with comments and reviews.
func (client *Client) ViewPullRequest(executionContext context.Context, repository string, number int, includeDiscussion bool) (json.RawMessage, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return nil, repositoryError
	}
	if numberError := validateNumber(number); numberError != nil {
		return nil, numberError
	}

	jsonFields := pullRequestViewJSONFieldsConstant
	if includeDiscussion {
		jsonFields += pullRequestDiscussionJSONFieldsConstant
	}

	arguments := []string{pullRequestSubcommandConstant, viewSubcommandConstant, formatNumber(number)}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, jsonFlagConstant, jsonFields)

	return client.runJSON(executionContext, viewPullRequestOperationNameConstant, execshell.CommandDetails{Arguments: arguments})
}

// CommentPullRequest adds a conversation comment and returns its URL.
func (client *Client) CommentPullRequest(executionContext context.Context, repository string, number int, body string) (string, error) {
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

	arguments := []string{pullRequestSubcommandConstant, commentSubcommandConstant, formatNumber(number)}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, bodyFileFlagConstant, stdinReferenceConstant)

	return client.runText(executionContext, commentPullRequestOperationNameConstant, execshell.CommandDetails{Arguments: arguments, StandardInput: []byte(body)})
}

// CreatePullRequest opens a pull request and returns its URL.
func (client *Client) CreatePullRequest(executionContext context.Context, repository string, options PullRequestCreateOptions) (string, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return "", repositoryError
	}
	if titleError := requireText(titleFieldNameConstant, options.Title); titleError != nil {
		return "", titleError
	}

	arguments := []string{pullRequestSubcommandConstant, createSubcommandConstant}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, titleFlagConstant, strings.TrimSpace(options.Title), bodyFileFlagConstant, stdinReferenceConstant)
	arguments = appendOptional(arguments, baseFlagConstant, options.BaseBranch)
	arguments = appendOptional(arguments, headFlagConstant, options.HeadBranch)
	if options.Draft {
		arguments = append(arguments, draftFlagConstant)
	}

	return client.runText(executionContext, createPullRequestOperationNameConstant, execshell.CommandDetails{Arguments: arguments, StandardInput: []byte(options.Body)})
}

// ReviewPullRequest submits a review. Request-changes and comment reviews require a body.
func (client *Client) ReviewPullRequest(executionContext context.Context, repository string, number int, options PullRequestReviewOptions) error {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return repositoryError
	}
	if numberError := validateNumber(number); numberError != nil {
		return numberError
	}

	var eventFlag string
	switch options.Event {
	case ReviewEventApprove:
		eventFlag = approveFlagConstant
	case ReviewEventRequestChanges:
		eventFlag = requestChangesFlagConstant
	case ReviewEventComment:
		eventFlag = commentFlagConstant
	default:
		return InvalidInputError{FieldName: reviewEventFieldNameConstant, Message: fmt.Sprintf(unsupportedValueTemplateConstant, options.Event)}
	}
	if options.Event != ReviewEventApprove {
		if bodyError := requireText(bodyFieldNameConstant, options.Body); bodyError != nil {
			return bodyError
		}
	}

	arguments := []string{pullRequestSubcommandConstant, reviewSubcommandConstant, formatNumber(number)}
	arguments = append(arguments, repositoryArguments(repositoryIdentifier)...)
	arguments = append(arguments, eventFlag)

	commandDetails := execshell.CommandDetails{Arguments: arguments}
	if len(strings.TrimSpace(options.Body)) > 0 {
		commandDetails.Arguments = append(commandDetails.Arguments, bodyFileFlagConstant, stdinReferenceConstant)
		commandDetails.StandardInput = []byte(options.Body)
	}

	_, executionError := client.runText(executionContext, reviewPullRequestOperationNameConstant, commandDetails)
	return executionError
}

package tools

import (
	"context"

	"github.com/temirov/ghbot/internal/githubcli"
)

// Tool names.
const (
	ToolIssueList          = "github_issue_list"
	ToolIssueView          = "github_issue_view"
	ToolIssueComment       = "github_issue_comment"
	ToolIssueCreate        = "github_issue_create"
	ToolPullRequestList    = "github_pr_list"
	ToolPullRequestView    = "github_pr_view"
	ToolPullRequestComment = "github_pr_comment"
	ToolPullRequestCreate  = "github_pr_create"
	ToolPullRequestReview  = "github_pr_review"
	ToolFileGet            = "github_file_get"
)

type issueListParameters struct {
	Repository string   `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	State      string   `json:"state,omitempty" jsonschema:"enum=open,enum=closed,enum=all"`
	Labels     []string `json:"labels,omitempty" jsonschema:"description=Only issues carrying every label"`
	Assignee   string   `json:"assignee,omitempty"`
	Search     string   `json:"search,omitempty" jsonschema:"description=GitHub search query"`
	Limit      int      `json:"limit,omitempty" jsonschema:"minimum=1,maximum=1000"`
}

type itemViewParameters struct {
	Repository      string `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	Number          int    `json:"number" jsonschema:"required,minimum=1"`
	IncludeComments bool   `json:"include_comments,omitempty"`
}

type itemCommentParameters struct {
	Repository string `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	Number     int    `json:"number" jsonschema:"required,minimum=1"`
	Body       string `json:"body" jsonschema:"required,description=Markdown comment body"`
}

type issueCreateParameters struct {
	Repository string   `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	Title      string   `json:"title" jsonschema:"required"`
	Body       string   `json:"body,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	Assignees  []string `json:"assignees,omitempty"`
}

type pullRequestListParameters struct {
	Repository string `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	State      string `json:"state,omitempty" jsonschema:"enum=open,enum=closed,enum=merged,enum=all"`
	BaseBranch string `json:"base,omitempty"`
	HeadBranch string `json:"head,omitempty"`
	Search     string `json:"search,omitempty" jsonschema:"description=GitHub search query"`
	Limit      int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=1000"`
}

type pullRequestCreateParameters struct {
	Repository string `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	Title      string `json:"title" jsonschema:"required"`
	Body       string `json:"body,omitempty"`
	BaseBranch string `json:"base,omitempty"`
	HeadBranch string `json:"head,omitempty"`
	Draft      bool   `json:"draft,omitempty"`
}

type pullRequestReviewParameters struct {
	Repository string `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	Number     int    `json:"number" jsonschema:"required,minimum=1"`
	Event      string `json:"event" jsonschema:"required,enum=approve,enum=request-changes,enum=comment"`
	Body       string `json:"body,omitempty" jsonschema:"description=Review body; required unless approving"`
}

type fileGetParameters struct {
	Repository string `json:"repo,omitempty" jsonschema:"description=Repository as owner/name; defaults to the configured repository"`
	Path       string `json:"path" jsonschema:"required"`
	Ref        string `json:"ref,omitempty" jsonschema:"description=Branch or tag or commit; defaults to the default branch"`
}

type urlOutput struct {
	URL string `json:"url"`
}

type reviewOutput struct {
	Number int    `json:"number"`
	Event  string `json:"event"`
}

func builtinTools() []tool {
	return []tool{
		define(ToolIssueList, "List issues in a repository as JSON.", func(executionContext context.Context, registry *Registry, parameters issueListParameters) (any, error) {
			return registry.operations.ListIssues(executionContext, registry.repository(parameters.Repository), githubcli.IssueListOptions{
				State:    githubcli.ItemState(parameters.State),
				Labels:   parameters.Labels,
				Assignee: parameters.Assignee,
				Search:   parameters.Search,
				Limit:    parameters.Limit,
			})
		}),
		define(ToolIssueView, "Read one issue including its body and optionally its comments.", func(executionContext context.Context, registry *Registry, parameters itemViewParameters) (any, error) {
			return registry.operations.ViewIssue(executionContext, registry.repository(parameters.Repository), parameters.Number, parameters.IncludeComments)
		}),
		define(ToolIssueComment, "Comment on an issue as the bot.", func(executionContext context.Context, registry *Registry, parameters itemCommentParameters) (any, error) {
			commentURL, commentError := registry.operations.CommentIssue(executionContext, registry.repository(parameters.Repository), parameters.Number, parameters.Body)
			if commentError != nil {
				return nil, commentError
			}
			return urlOutput{URL: commentURL}, nil
		}),
		define(ToolIssueCreate, "Open a new issue as the bot.", func(executionContext context.Context, registry *Registry, parameters issueCreateParameters) (any, error) {
			issueURL, createError := registry.operations.CreateIssue(executionContext, registry.repository(parameters.Repository), githubcli.IssueCreateOptions{
				Title:     parameters.Title,
				Body:      parameters.Body,
				Labels:    parameters.Labels,
				Assignees: parameters.Assignees,
			})
			if createError != nil {
				return nil, createError
			}
			return urlOutput{URL: issueURL}, nil
		}),
		define(ToolPullRequestList, "List pull requests in a repository as JSON.", func(executionContext context.Context, registry *Registry, parameters pullRequestListParameters) (any, error) {
			return registry.operations.ListPullRequests(executionContext, registry.repository(parameters.Repository), githubcli.PullRequestListOptions{
				State:      githubcli.ItemState(parameters.State),
				BaseBranch: parameters.BaseBranch,
				HeadBranch: parameters.HeadBranch,
				Search:     parameters.Search,
				Limit:      parameters.Limit,
			})
		}),
		define(ToolPullRequestView, "Read one pull request with changed files and optionally comments and reviews.", func(executionContext context.Context, registry *Registry, parameters itemViewParameters) (any, error) {
			return registry.operations.ViewPullRequest(executionContext, registry.repository(parameters.Repository), parameters.Number, parameters.IncludeComments)
		}),
		define(ToolPullRequestComment, "Comment on a pull request conversation as the bot.", func(executionContext context.Context, registry *Registry, parameters itemCommentParameters) (any, error) {
			commentURL, commentError := registry.operations.CommentPullRequest(executionContext, registry.repository(parameters.Repository), parameters.Number, parameters.Body)
			if commentError != nil {
				return nil, commentError
			}
			return urlOutput{URL: commentURL}, nil
		}),
		define(ToolPullRequestCreate, "Open a pull request as the bot.", func(executionContext context.Context, registry *Registry, parameters pullRequestCreateParameters) (any, error) {
			pullRequestURL, createError := registry.operations.CreatePullRequest(executionContext, registry.repository(parameters.Repository), githubcli.PullRequestCreateOptions{
				Title:      parameters.Title,
				Body:       parameters.Body,
				BaseBranch: parameters.BaseBranch,
				HeadBranch: parameters.HeadBranch,
				Draft:      parameters.Draft,
			})
			if createError != nil {
				return nil, createError
			}
			return urlOutput{URL: pullRequestURL}, nil
		}),
		define(ToolPullRequestReview, "Approve, request changes on, or comment on a pull request.", func(executionContext context.Context, registry *Registry, parameters pullRequestReviewParameters) (any, error) {
			reviewError := registry.operations.ReviewPullRequest(executionContext, registry.repository(parameters.Repository), parameters.Number, githubcli.PullRequestReviewOptions{
				Event: githubcli.ReviewEvent(parameters.Event),
				Body:  parameters.Body,
			})
			if reviewError != nil {
				return nil, reviewError
			}
			return reviewOutput{Number: parameters.Number, Event: parameters.Event}, nil
		}),
		define(ToolFileGet, "Fetch the raw contents of a file at a ref.", func(executionContext context.Context, registry *Registry, parameters fileGetParameters) (any, error) {
			return registry.operations.FetchFile(executionContext, registry.repository(parameters.Repository), parameters.Path, parameters.Ref)
		}),
	}
}

package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/githubcli"
	"github.com/temirov/ghbot/internal/tools"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	issueCommandUseConstant               = "issue"
	issueCommandShortDescriptionConstant  = "Read and write issues as the bot"
	pullRequestCommandUseConstant         = "pr"
	pullRequestShortDescriptionConstant   = "Read, write, and review pull requests as the bot"
	fileCommandUseConstant                = "file"
	fileCommandShortDescriptionConstant   = "Read repository files as the bot"
	listCommandUseConstant                = "list"
	viewCommandUseConstant                = "view <number>"
	commentCommandUseConstant             = "comment <number>"
	createCommandUseConstant              = "create"
	reviewCommandUseConstant              = "review <number>"
	getCommandUseConstant                 = "get"
	listIssuesShortDescriptionConstant    = "List issues as JSON"
	viewIssueShortDescriptionConstant     = "Show one issue as JSON"
	commentIssueShortDescriptionConstant  = "Comment on an issue"
	createIssueShortDescriptionConstant   = "Open an issue"
	listPullsShortDescriptionConstant     = "List pull requests as JSON"
	viewPullShortDescriptionConstant      = "Show one pull request as JSON"
	commentPullShortDescriptionConstant   = "Comment on a pull request"
	createPullShortDescriptionConstant    = "Open a pull request"
	reviewPullShortDescriptionConstant    = "Approve, request changes on, or comment on a pull request"
	getFileShortDescriptionConstant       = "Print a file's raw content"
	repositoryFlagNameConstant            = "repo"
	repositoryFlagUsageConstant           = "Repository in owner/name form; defaults to the configured bot repository or the current directory"
	stateFlagNameConstant                 = "state"
	stateFlagUsageConstant                = "State filter: open, closed, merged, or all"
	limitFlagNameConstant                 = "limit"
	limitFlagUsageConstant                = "Maximum number of items to list"
	labelFlagNameConstant                 = "label"
	labelFlagUsageConstant                = "Label filter or label to apply (repeatable)"
	assigneeFlagNameConstant              = "assignee"
	assigneeFlagUsageConstant             = "Assignee filter or assignee to add (repeatable on create)"
	searchFlagNameConstant                = "search"
	searchFlagUsageConstant               = "GitHub search query"
	baseFlagNameConstant                  = "base"
	baseFlagUsageConstant                 = "Base branch"
	headFlagNameConstant                  = "head"
	headFlagUsageConstant                 = "Head branch"
	commentsFlagNameConstant              = "comments"
	commentsFlagUsageConstant             = "Include comments (and reviews for pull requests)"
	titleFlagNameConstant                 = "title"
	titleFlagUsageConstant                = "Title"
	bodyFlagNameConstant                  = "body"
	bodyFlagUsageConstant                 = "Body text"
	bodyFileFlagNameConstant              = "body-file"
	bodyFileFlagUsageConstant             = "Read the body from a file, or from standard input with -"
	draftFlagNameConstant                 = "draft"
	draftFlagUsageConstant                = "Open the pull request as a draft"
	eventFlagNameConstant                 = "event"
	eventFlagUsageConstant                = "Review event: approve, request-changes, or comment"
	pathFlagNameConstant                  = "path"
	pathFlagUsageConstant                 = "File path inside the repository"
	refFlagNameConstant                   = "ref"
	refFlagUsageConstant                  = "Branch, tag, or commit"
	standardInputPathConstant             = "-"
	defaultStateConstant                  = "open"
	defaultReviewEventConstant            = "comment"
	sessionNotConfiguredMessageConstant   = "github session is not configured"
	conflictingBodyFlagsMessageConstant   = "use either --body or --body-file, not both"
	invalidNumberTemplateConstant         = "invalid number %q: must be a positive integer"
	bodyFileReadErrorTemplateConstant     = "unable to read body file: %w"
	commandExecutionErrorTemplateConstant = "%s failed: %w"
	commandResolvedMessageConstant        = "running github command"
	logFieldCommandConstant               = "command"
	logFieldRepositoryConstant            = "repository"
	logFieldBotIdentityConstant           = "bot_identity"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// Session is what the commands need to reach GitHub.
type Session struct {
	Operations        tools.GitHubOperations
	DefaultRepository string
	BotIdentity       bool
}

// SessionProvider builds a Session once configuration is loaded.
type SessionProvider func(executionContext context.Context) (Session, error)

// URLResult is printed by comment and create commands.
type URLResult struct {
	URL string `json:"url"`
}

// ReviewResult is printed by pr review.
type ReviewResult struct {
	Number int    `json:"number"`
	Event  string `json:"event"`
}

// CommandBuilder assembles the issue, pr, and file command groups.
type CommandBuilder struct {
	LoggerProvider  LoggerProvider
	SessionProvider SessionProvider
}

// Build returns the issue, pr, and file commands.
func (builder *CommandBuilder) Build() ([]*cobra.Command, error) {
	return []*cobra.Command{builder.issueCommand(), builder.pullRequestCommand(), builder.fileCommand()}, nil
}

func (builder *CommandBuilder) issueCommand() *cobra.Command {
	issueCommand := &cobra.Command{Use: issueCommandUseConstant, Short: issueCommandShortDescriptionConstant}

	listCommand := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listIssuesShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			options := githubcli.IssueListOptions{}
			stateValue, _ := command.Flags().GetString(stateFlagNameConstant)
			options.State = githubcli.ItemState(stateValue)
			options.Limit, _ = command.Flags().GetInt(limitFlagNameConstant)
			options.Labels, _ = command.Flags().GetStringSlice(labelFlagNameConstant)
			options.Assignee, _ = command.Flags().GetString(assigneeFlagNameConstant)
			options.Search, _ = command.Flags().GetString(searchFlagNameConstant)

			listing, listError := session.Operations.ListIssues(command.Context(), repository, options)
			if listError != nil {
				return listError
			}
			return utils.WriteJSON(command.OutOrStdout(), listing)
		}),
	}
	addListFlags(listCommand)
	listCommand.Flags().StringSlice(labelFlagNameConstant, nil, labelFlagUsageConstant)
	listCommand.Flags().String(assigneeFlagNameConstant, "", assigneeFlagUsageConstant)

	viewCommand := &cobra.Command{
		Use:   viewCommandUseConstant,
		Short: viewIssueShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			number, numberError := parseNumber(arguments[0])
			if numberError != nil {
				return numberError
			}
			includeComments, _ := command.Flags().GetBool(commentsFlagNameConstant)
			issue, viewError := session.Operations.ViewIssue(command.Context(), repository, number, includeComments)
			if viewError != nil {
				return viewError
			}
			return utils.WriteJSON(command.OutOrStdout(), issue)
		}),
	}
	viewCommand.Flags().Bool(commentsFlagNameConstant, false, commentsFlagUsageConstant)

	commentCommand := &cobra.Command{
		Use:   commentCommandUseConstant,
		Short: commentIssueShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			number, numberError := parseNumber(arguments[0])
			if numberError != nil {
				return numberError
			}
			body, bodyError := readBody(command)
			if bodyError != nil {
				return bodyError
			}
			commentURL, commentError := session.Operations.CommentIssue(command.Context(), repository, number, body)
			if commentError != nil {
				return commentError
			}
			return utils.WriteJSON(command.OutOrStdout(), URLResult{URL: commentURL})
		}),
	}
	addBodyFlags(commentCommand)

	createCommand := &cobra.Command{
		Use:   createCommandUseConstant,
		Short: createIssueShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			body, bodyError := readBody(command)
			if bodyError != nil {
				return bodyError
			}
			options := githubcli.IssueCreateOptions{Body: body}
			options.Title, _ = command.Flags().GetString(titleFlagNameConstant)
			options.Labels, _ = command.Flags().GetStringSlice(labelFlagNameConstant)
			options.Assignees, _ = command.Flags().GetStringSlice(assigneeFlagNameConstant)

			issueURL, createError := session.Operations.CreateIssue(command.Context(), repository, options)
			if createError != nil {
				return createError
			}
			return utils.WriteJSON(command.OutOrStdout(), URLResult{URL: issueURL})
		}),
	}
	createCommand.Flags().String(titleFlagNameConstant, "", titleFlagUsageConstant)
	createCommand.Flags().StringSlice(labelFlagNameConstant, nil, labelFlagUsageConstant)
	createCommand.Flags().StringSlice(assigneeFlagNameConstant, nil, assigneeFlagUsageConstant)
	addBodyFlags(createCommand)

	issueCommand.AddCommand(listCommand, viewCommand, commentCommand, createCommand)
	addRepositoryFlag(issueCommand)
	return issueCommand
}

func (builder *CommandBuilder) pullRequestCommand() *cobra.Command {
	pullRequestCommand := &cobra.Command{Use: pullRequestCommandUseConstant, Short: pullRequestShortDescriptionConstant}

	listCommand := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listPullsShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			options := githubcli.PullRequestListOptions{}
			stateValue, _ := command.Flags().GetString(stateFlagNameConstant)
			options.State = githubcli.ItemState(stateValue)
			options.Limit, _ = command.Flags().GetInt(limitFlagNameConstant)
			options.BaseBranch, _ = command.Flags().GetString(baseFlagNameConstant)
			options.HeadBranch, _ = command.Flags().GetString(headFlagNameConstant)
			options.Search, _ = command.Flags().GetString(searchFlagNameConstant)

			listing, listError := session.Operations.ListPullRequests(command.Context(), repository, options)
			if listError != nil {
				return listError
			}
			return utils.WriteJSON(command.OutOrStdout(), listing)
		}),
	}
	addListFlags(listCommand)
	addBranchFlags(listCommand)

	viewCommand := &cobra.Command{
		Use:   viewCommandUseConstant,
		Short: viewPullShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			number, numberError := parseNumber(arguments[0])
			if numberError != nil {
				return numberError
			}
			includeDiscussion, _ := command.Flags().GetBool(commentsFlagNameConstant)
			pullRequest, viewError := session.Operations.ViewPullRequest(command.Context(), repository, number, includeDiscussion)
			if viewError != nil {
				return viewError
			}
			return utils.WriteJSON(command.OutOrStdout(), pullRequest)
		}),
	}
	viewCommand.Flags().Bool(commentsFlagNameConstant, false, commentsFlagUsageConstant)

	commentCommand := &cobra.Command{
		Use:   commentCommandUseConstant,
		Short: commentPullShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			number, numberError := parseNumber(arguments[0])
			if numberError != nil {
				return numberError
			}
			body, bodyError := readBody(command)
			if bodyError != nil {
				return bodyError
			}
			commentURL, commentError := session.Operations.CommentPullRequest(command.Context(), repository, number, body)
			if commentError != nil {
				return commentError
			}
			return utils.WriteJSON(command.OutOrStdout(), URLResult{URL: commentURL})
		}),
	}
	addBodyFlags(commentCommand)

	createCommand := &cobra.Command{
		Use:   createCommandUseConstant,
		Short: createPullShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			body, bodyError := readBody(command)
			if bodyError != nil {
				return bodyError
			}
			options := githubcli.PullRequestCreateOptions{Body: body}
			options.Title, _ = command.Flags().GetString(titleFlagNameConstant)
			options.BaseBranch, _ = command.Flags().GetString(baseFlagNameConstant)
			options.HeadBranch, _ = command.Flags().GetString(headFlagNameConstant)
			options.Draft, _ = command.Flags().GetBool(draftFlagNameConstant)

			pullRequestURL, createError := session.Operations.CreatePullRequest(command.Context(), repository, options)
			if createError != nil {
				return createError
			}
			return utils.WriteJSON(command.OutOrStdout(), URLResult{URL: pullRequestURL})
		}),
	}
	createCommand.Flags().String(titleFlagNameConstant, "", titleFlagUsageConstant)
	createCommand.Flags().Bool(draftFlagNameConstant, false, draftFlagUsageConstant)
	addBranchFlags(createCommand)
	addBodyFlags(createCommand)

	reviewCommand := &cobra.Command{
		Use:   reviewCommandUseConstant,
		Short: reviewPullShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			number, numberError := parseNumber(arguments[0])
			if numberError != nil {
				return numberError
			}
			body, bodyError := readBody(command)
			if bodyError != nil {
				return bodyError
			}
			eventValue, _ := command.Flags().GetString(eventFlagNameConstant)
			reviewError := session.Operations.ReviewPullRequest(command.Context(), repository, number, githubcli.PullRequestReviewOptions{
				Event: githubcli.ReviewEvent(eventValue),
				Body:  body,
			})
			if reviewError != nil {
				return reviewError
			}
			return utils.WriteJSON(command.OutOrStdout(), ReviewResult{Number: number, Event: eventValue})
		}),
	}
	reviewCommand.Flags().String(eventFlagNameConstant, defaultReviewEventConstant, eventFlagUsageConstant)
	addBodyFlags(reviewCommand)

	pullRequestCommand.AddCommand(listCommand, viewCommand, commentCommand, createCommand, reviewCommand)
	addRepositoryFlag(pullRequestCommand)
	return pullRequestCommand
}

func (builder *CommandBuilder) fileCommand() *cobra.Command {
	fileCommand := &cobra.Command{Use: fileCommandUseConstant, Short: fileCommandShortDescriptionConstant}

	getCommand := &cobra.Command{
		Use:   getCommandUseConstant,
		Short: getFileShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE: builder.withSession(func(command *cobra.Command, session Session, repository string, arguments []string) error {
			filePath, _ := command.Flags().GetString(pathFlagNameConstant)
			ref, _ := command.Flags().GetString(refFlagNameConstant)
			fileContent, fetchError := session.Operations.FetchFile(command.Context(), repository, filePath, ref)
			if fetchError != nil {
				return fetchError
			}
			_, writeError := io.WriteString(command.OutOrStdout(), fileContent.Content)
			return writeError
		}),
	}
	getCommand.Flags().String(pathFlagNameConstant, "", pathFlagUsageConstant)
	getCommand.Flags().String(refFlagNameConstant, "", refFlagUsageConstant)

	fileCommand.AddCommand(getCommand)
	addRepositoryFlag(fileCommand)
	return fileCommand
}

type sessionRunner func(command *cobra.Command, session Session, repository string, arguments []string) error

func (builder *CommandBuilder) withSession(runner sessionRunner) func(*cobra.Command, []string) error {
	return func(command *cobra.Command, arguments []string) error {
		if builder.SessionProvider == nil {
			return errors.New(sessionNotConfiguredMessageConstant)
		}
		session, sessionError := builder.SessionProvider(command.Context())
		if sessionError != nil {
			return sessionError
		}
		if session.Operations == nil {
			return errors.New(sessionNotConfiguredMessageConstant)
		}

		repository, _ := command.Flags().GetString(repositoryFlagNameConstant)
		if len(strings.TrimSpace(repository)) == 0 {
			repository = session.DefaultRepository
		}

		builder.resolveLogger().Debug(
			commandResolvedMessageConstant,
			zap.String(logFieldCommandConstant, command.CommandPath()),
			zap.String(logFieldRepositoryConstant, repository),
			zap.Bool(logFieldBotIdentityConstant, session.BotIdentity),
		)

		if runError := runner(command, session, repository, arguments); runError != nil {
			return fmt.Errorf(commandExecutionErrorTemplateConstant, command.CommandPath(), runError)
		}
		return nil
	}
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

func addRepositoryFlag(command *cobra.Command) {
	command.PersistentFlags().String(repositoryFlagNameConstant, "", repositoryFlagUsageConstant)
}

func addListFlags(command *cobra.Command) {
	command.Flags().String(stateFlagNameConstant, defaultStateConstant, stateFlagUsageConstant)
	command.Flags().Int(limitFlagNameConstant, 0, limitFlagUsageConstant)
	command.Flags().String(searchFlagNameConstant, "", searchFlagUsageConstant)
}

func addBranchFlags(command *cobra.Command) {
	command.Flags().String(baseFlagNameConstant, "", baseFlagUsageConstant)
	command.Flags().String(headFlagNameConstant, "", headFlagUsageConstant)
}

func addBodyFlags(command *cobra.Command) {
	command.Flags().String(bodyFlagNameConstant, "", bodyFlagUsageConstant)
	command.Flags().String(bodyFileFlagNameConstant, "", bodyFileFlagUsageConstant)
}

func readBody(command *cobra.Command) (string, error) {
	body, _ := command.Flags().GetString(bodyFlagNameConstant)
	bodyFile, _ := command.Flags().GetString(bodyFileFlagNameConstant)
	if len(bodyFile) == 0 {
		return body, nil
	}
	if command.Flags().Changed(bodyFlagNameConstant) {
		return "", errors.New(conflictingBodyFlagsMessageConstant)
	}

	var bodyContent []byte
	var readError error
	if bodyFile == standardInputPathConstant {
		bodyContent, readError = io.ReadAll(command.InOrStdin())
	} else {
		bodyContent, readError = os.ReadFile(utils.ExpandHomeDirectory(bodyFile, nil))
	}
	if readError != nil {
		return "", fmt.Errorf(bodyFileReadErrorTemplateConstant, readError)
	}
	return string(bodyContent), nil
}

func parseNumber(argument string) (int, error) {
	number, parseError := strconv.Atoi(strings.TrimSpace(argument))
	if parseError != nil || number <= 0 {
		return 0, fmt.Errorf(invalidNumberTemplateConstant, argument)
	}
	return number, nil
}

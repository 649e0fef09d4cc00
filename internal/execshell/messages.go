package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	fallbackUnknownValueLabelConstant       = "unknown"
	currentRepositoryLabelConstant          = "current repository"
)

const (
	githubIssueSubcommandNameConstant       = "issue"
	githubPullRequestSubcommandNameConstant = "pr"
	githubAPICommandNameConstant            = "api"
	githubListSubcommandNameConstant        = "list"
	githubViewSubcommandNameConstant        = "view"
	githubCommentSubcommandNameConstant     = "comment"
	githubCreateSubcommandNameConstant      = "create"
	githubReviewSubcommandNameConstant      = "review"
	githubRepoFlagConstant                  = "--repo"
	githubMethodFlagConstant                = "-X"
)

const (
	githubListStartTemplateConstant              = "Listing %s in %s"
	githubListSuccessTemplateConstant            = "Listed %s in %s"
	githubListFailureTemplateConstant            = "Failed to list %s in %s (exit code %d%s)"
	githubListExecutionFailureTemplateConstant   = "Unable to list %s in %s: %s"
	githubItemStartTemplateConstant              = "%s %s #%s in %s"
	githubItemSuccessTemplateConstant            = "%s %s #%s in %s"
	githubItemFailureTemplateConstant            = "Failed %s %s #%s in %s (exit code %d%s)"
	githubItemExecutionFailureTemplateConstant   = "Unable to %s %s #%s in %s: %s"
	githubCreateStartTemplateConstant            = "Creating %s in %s"
	githubCreateSuccessTemplateConstant          = "Created %s in %s"
	githubCreateFailureTemplateConstant          = "Failed to create %s in %s (exit code %d%s)"
	githubCreateExecutionFailureTemplateConstant = "Unable to create %s in %s: %s"
	githubAPIStartTemplateConstant               = "Calling GitHub API %s %s"
	githubAPISuccessTemplateConstant             = "GitHub API %s %s succeeded"
	githubAPIFailureTemplateConstant             = "GitHub API %s %s failed (exit code %d%s)"
	githubAPIExecutionFailureTemplateConstant    = "Unable to call GitHub API %s %s: %s"
	githubAPIDefaultMethodConstant               = "GET"
	githubIssueNounConstant                      = "issue"
	githubIssuesNounConstant                     = "issues"
	githubPullRequestNounConstant                = "pull request"
	githubPullRequestsNounConstant               = "pull requests"
)

var githubItemVerbs = map[string]struct {
	progressive string
	past        string
	infinitive  string
	failure     string
}{
	githubViewSubcommandNameConstant:    {progressive: "Reading", past: "Read", infinitive: "read", failure: "reading"},
	githubCommentSubcommandNameConstant: {progressive: "Commenting on", past: "Commented on", infinitive: "comment on", failure: "commenting on"},
	githubReviewSubcommandNameConstant:  {progressive: "Reviewing", past: "Reviewed", infinitive: "review", failure: "reviewing"},
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGitHub:
		return formatter.describeGitHubMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitHubMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) < 2 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	primary := strings.TrimSpace(arguments[0])
	switch primary {
	case githubIssueSubcommandNameConstant:
		return formatter.describeGitHubItemCommand(command, result, failure, stage, githubIssueNounConstant, githubIssuesNounConstant)
	case githubPullRequestSubcommandNameConstant:
		return formatter.describeGitHubItemCommand(command, result, failure, stage, githubPullRequestNounConstant, githubPullRequestsNounConstant)
	case githubAPICommandNameConstant:
		return formatter.describeGitHubAPICommand(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitHubItemCommand(command ShellCommand, result ExecutionResult, failure error, stage messageStage, singularNoun string, pluralNoun string) string {
	arguments := command.Details.Arguments
	subcommand := strings.TrimSpace(arguments[1])
	repository := strings.TrimSpace(findFlagValue(arguments, githubRepoFlagConstant))
	if len(repository) == 0 {
		repository = currentRepositoryLabelConstant
	}

	switch subcommand {
	case githubListSubcommandNameConstant:
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(githubListStartTemplateConstant, pluralNoun, repository)
		case messageStageSuccess:
			return fmt.Sprintf(githubListSuccessTemplateConstant, pluralNoun, repository)
		case messageStageFailure:
			return fmt.Sprintf(githubListFailureTemplateConstant, pluralNoun, repository, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		default:
			return fmt.Sprintf(githubListExecutionFailureTemplateConstant, pluralNoun, repository, formatter.describeFailure(failure))
		}
	case githubCreateSubcommandNameConstant:
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(githubCreateStartTemplateConstant, singularNoun, repository)
		case messageStageSuccess:
			return fmt.Sprintf(githubCreateSuccessTemplateConstant, singularNoun, repository)
		case messageStageFailure:
			return fmt.Sprintf(githubCreateFailureTemplateConstant, singularNoun, repository, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		default:
			return fmt.Sprintf(githubCreateExecutionFailureTemplateConstant, singularNoun, repository, formatter.describeFailure(failure))
		}
	}

	verbs, known := githubItemVerbs[subcommand]
	if !known {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
	itemNumber := formatter.ensureValue(formatter.argumentAtIndex(arguments, 2))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(githubItemStartTemplateConstant, verbs.progressive, singularNoun, itemNumber, repository)
	case messageStageSuccess:
		return fmt.Sprintf(githubItemSuccessTemplateConstant, verbs.past, singularNoun, itemNumber, repository)
	case messageStageFailure:
		return fmt.Sprintf(githubItemFailureTemplateConstant, verbs.failure, singularNoun, itemNumber, repository, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(githubItemExecutionFailureTemplateConstant, verbs.infinitive, singularNoun, itemNumber, repository, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitHubAPICommand(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	endpoint := formatter.ensureValue(formatter.argumentAtIndex(arguments, 1))
	method := strings.TrimSpace(findFlagValue(arguments, githubMethodFlagConstant))
	if len(method) == 0 {
		method = githubAPIDefaultMethodConstant
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(githubAPIStartTemplateConstant, method, endpoint)
	case messageStageSuccess:
		return fmt.Sprintf(githubAPISuccessTemplateConstant, method, endpoint)
	case messageStageFailure:
		return fmt.Sprintf(githubAPIFailureTemplateConstant, method, endpoint, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(githubAPIExecutionFailureTemplateConstant, method, endpoint, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	workingDirectorySuffix := emptyStringConstant
	if trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory); len(trimmedWorkingDirectory) > 0 {
		workingDirectorySuffix = fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, workingDirectorySuffix)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index >= 0 && index < len(arguments) {
		return arguments[index]
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func findFlagValue(arguments []string, flag string) string {
	for index := 0; index < len(arguments)-1; index++ {
		if arguments[index] == flag {
			return arguments[index+1]
		}
	}
	return emptyStringConstant
}

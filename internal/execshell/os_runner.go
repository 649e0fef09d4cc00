package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct {
	executablePaths map[CommandName]string
}

// NewOSCommandRunner constructs a runner backed by os/exec. Entries in executablePaths
// replace the default executable lookup for the matching command name.
func NewOSCommandRunner(executablePaths map[CommandName]string) *OSCommandRunner {
	duplicatedPaths := make(map[CommandName]string, len(executablePaths))
	for commandName, executablePath := range executablePaths {
		trimmedPath := strings.TrimSpace(executablePath)
		if len(trimmedPath) == 0 {
			continue
		}
		duplicatedPaths[commandName] = trimmedPath
	}
	return &OSCommandRunner{executablePaths: duplicatedPaths}
}

// Run executes the supplied command using os/exec.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, runner.resolveExecutable(command.Name), commandArguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		executable.Env = mergeEnvironment(os.Environ(), command.Details.EnvironmentVariables)
	}

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return ExecutionResult{}, contextError
		}
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

func (runner *OSCommandRunner) resolveExecutable(commandName CommandName) string {
	if runner != nil {
		if executablePath, exists := runner.executablePaths[commandName]; exists {
			return executablePath
		}
	}
	return string(commandName)
}

// mergeEnvironment overrides inherited variables so an injected GH_TOKEN is never shadowed by the parent value.
func mergeEnvironment(inheritedEnvironment []string, overrides map[string]string) []string {
	mergedEnvironment := make([]string, 0, len(inheritedEnvironment)+len(overrides))
	for _, assignment := range inheritedEnvironment {
		environmentKey, _, _ := strings.Cut(assignment, environmentAssignmentSeparatorConstant)
		if _, overridden := overrides[environmentKey]; overridden {
			continue
		}
		mergedEnvironment = append(mergedEnvironment, assignment)
	}
	for environmentKey, environmentValue := range overrides {
		mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, environmentValue))
	}
	return mergedEnvironment
}

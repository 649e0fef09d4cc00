package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/tools"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	toolCommandUseConstant                = "tool"
	toolCommandShortDescriptionConstant   = "Expose GitHub operations as agent tools"
	toolCommandLongDescriptionConstant    = "tool lists tool schemas and invokes tools with JSON parameters, printing a structured result."
	listCommandUseConstant                = "list"
	listCommandShortDescriptionConstant   = "Print tool names, descriptions, and input schemas"
	callCommandUseConstant                = "call <name>"
	callCommandShortDescriptionConstant   = "Invoke a tool with JSON parameters"
	paramsFlagNameConstant                = "params"
	paramsFlagUsageConstant               = "Tool parameters as a JSON object, or - to read them from standard input"
	defaultParamsConstant                 = "{}"
	standardInputMarkerConstant           = "-"
	invokerNotConfiguredMessageConstant   = "tool registry is not configured"
	parametersDecodeErrorTemplateConstant = "invalid --params: %w"
	parametersReadErrorTemplateConstant   = "unable to read parameters: %w"
	toolFailedTemplateConstant            = "tool %s failed (%s): %s"
	toolCalledMessageConstant             = "tool call completed"
	invokerUnavailableMessageConstant     = "tool registry unavailable"
	logFieldToolConstant                  = "tool"
	logFieldSuccessConstant               = "success"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// Invoker runs tools.
type Invoker interface {
	Invoke(executionContext context.Context, name string, parameters map[string]any) tools.Result
}

// DefinitionsProvider lists tool definitions; tool list never needs credentials.
type DefinitionsProvider func() []tools.Definition

// InvokerProvider builds an Invoker once configuration is loaded.
type InvokerProvider func(executionContext context.Context) (Invoker, error)

// FailedError reports an unsuccessful tool result after it has been printed.
// Cause is set when the failure happened before the tool ran.
type FailedError struct {
	Name   string
	Result tools.Result
	Cause  error
}

// Error describes the failed tool call.
func (failedError FailedError) Error() string {
	return fmt.Sprintf(toolFailedTemplateConstant, failedError.Name, failedError.Result.ErrorKind, failedError.Result.Error)
}

// Unwrap exposes the setup error, if any.
func (failedError FailedError) Unwrap() error {
	return failedError.Cause
}

// CommandBuilder assembles the tool command hierarchy.
type CommandBuilder struct {
	LoggerProvider      LoggerProvider
	DefinitionsProvider DefinitionsProvider
	InvokerProvider     InvokerProvider
}

// Build constructs the tool command with list and call subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	toolCommand := &cobra.Command{
		Use:   toolCommandUseConstant,
		Short: toolCommandShortDescriptionConstant,
		Long:  toolCommandLongDescriptionConstant,
	}

	listCommand := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runList,
	}

	callCommand := &cobra.Command{
		Use:   callCommandUseConstant,
		Short: callCommandShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE:  builder.runCall,
	}
	callCommand.Flags().String(paramsFlagNameConstant, defaultParamsConstant, paramsFlagUsageConstant)

	toolCommand.AddCommand(listCommand, callCommand)
	return toolCommand, nil
}

func (builder *CommandBuilder) runList(command *cobra.Command, arguments []string) error {
	if builder.DefinitionsProvider == nil {
		return utils.WriteJSON(command.OutOrStdout(), tools.Definitions())
	}
	return utils.WriteJSON(command.OutOrStdout(), builder.DefinitionsProvider())
}

func (builder *CommandBuilder) runCall(command *cobra.Command, arguments []string) error {
	parameters, parametersError := readParameters(command)
	if parametersError != nil {
		return parametersError
	}

	toolName := arguments[0]
	invoker, invokerError := builder.resolveInvoker(command.Context())
	if invokerError != nil {
		builder.resolveLogger().Warn(invokerUnavailableMessageConstant, zap.String(logFieldToolConstant, toolName), zap.Error(invokerError))
		result := tools.FailureFor(invokerError)
		if writeError := utils.WriteJSON(command.OutOrStdout(), result); writeError != nil {
			return writeError
		}
		return FailedError{Name: toolName, Result: result, Cause: invokerError}
	}

	result := invoker.Invoke(command.Context(), toolName, parameters)
	builder.resolveLogger().Debug(toolCalledMessageConstant, zap.String(logFieldToolConstant, toolName), zap.Bool(logFieldSuccessConstant, result.Success))

	if writeError := utils.WriteJSON(command.OutOrStdout(), result); writeError != nil {
		return writeError
	}
	if !result.Success {
		return FailedError{Name: toolName, Result: result}
	}
	return nil
}

func (builder *CommandBuilder) resolveInvoker(executionContext context.Context) (Invoker, error) {
	if builder.InvokerProvider == nil {
		return nil, errors.New(invokerNotConfiguredMessageConstant)
	}
	invoker, invokerError := builder.InvokerProvider(executionContext)
	if invokerError != nil {
		return nil, invokerError
	}
	if invoker == nil {
		return nil, errors.New(invokerNotConfiguredMessageConstant)
	}
	return invoker, nil
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

func readParameters(command *cobra.Command) (map[string]any, error) {
	rawParameters, flagError := command.Flags().GetString(paramsFlagNameConstant)
	if flagError != nil {
		return nil, flagError
	}
	if strings.TrimSpace(rawParameters) == standardInputMarkerConstant {
		standardInput, readError := io.ReadAll(command.InOrStdin())
		if readError != nil {
			return nil, fmt.Errorf(parametersReadErrorTemplateConstant, readError)
		}
		rawParameters = string(standardInput)
	}
	if len(strings.TrimSpace(rawParameters)) == 0 {
		rawParameters = defaultParamsConstant
	}

	parameters := map[string]any{}
	if decodeError := json.Unmarshal([]byte(rawParameters), &parameters); decodeError != nil {
		return nil, fmt.Errorf(parametersDecodeErrorTemplateConstant, decodeError)
	}
	return parameters, nil
}

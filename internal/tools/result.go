package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/execshell"
	"github.com/temirov/ghbot/internal/githubapp"
	"github.com/temirov/ghbot/internal/githubcli"
)

// ErrorKind classifies a failed invocation for the agent host.
type ErrorKind string

// Error kinds reported in Result.
const (
	ErrorKindConfiguration ErrorKind = ErrorKind("configuration")
	ErrorKindAuthExchange  ErrorKind = ErrorKind("auth_exchange")
	ErrorKindCommand       ErrorKind = ErrorKind("command")
	ErrorKindInvalidInput  ErrorKind = ErrorKind("invalid_input")
	ErrorKindUnknownTool   ErrorKind = ErrorKind("unknown_tool")
	ErrorKindInternal      ErrorKind = ErrorKind("internal")
)

// Result is the structured outcome of a tool invocation.
type Result struct {
	Success   bool            `json:"success"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
}

// ParameterError reports parameters that could not be decoded into the tool's parameter struct.
type ParameterError struct {
	Tool  string
	Cause error
}

// Error describes the decoding failure.
func (parameterError ParameterError) Error() string {
	return fmt.Sprintf(parameterDecodingTemplateConstant, parameterError.Tool, parameterError.Cause)
}

// Unwrap exposes the decoder error.
func (parameterError ParameterError) Unwrap() error {
	return parameterError.Cause
}

// Classify maps an error onto an ErrorKind.
func Classify(err error) ErrorKind {
	var configurationError credentials.ConfigurationError
	var exchangeError githubapp.AuthExchangeError
	var parameterError ParameterError
	var inputError githubcli.InvalidInputError
	var commandFailedError execshell.CommandFailedError
	var commandExecutionError execshell.CommandExecutionError
	var decodingError githubcli.ResponseDecodingError

	switch {
	case errors.As(err, &configurationError):
		return ErrorKindConfiguration
	case errors.As(err, &exchangeError):
		return ErrorKindAuthExchange
	case errors.As(err, &parameterError), errors.As(err, &inputError):
		return ErrorKindInvalidInput
	case errors.As(err, &commandFailedError), errors.As(err, &commandExecutionError), errors.As(err, &decodingError):
		return ErrorKindCommand
	default:
		return ErrorKindInternal
	}
}

// FailureFor converts an error raised outside Invoke, such as a failed registry setup, into a Result.
func FailureFor(err error) Result {
	return failure(Classify(err), err.Error())
}

func failure(kind ErrorKind, message string) Result {
	return Result{Success: false, Error: message, ErrorKind: kind}
}

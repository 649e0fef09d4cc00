package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/githubcli"
)

const (
	unknownToolTemplateConstant       = "unknown tool %q"
	parameterDecodingTemplateConstant = "invalid parameters for %s: %v"
	panicTemplateConstant             = "tool %s panicked: %v"
	outputEncodingTemplateConstant    = "encoding %s output: %v"
	parameterTagNameConstant          = "json"
	toolInvokedMessageConstant        = "tool invoked"
	toolFailedMessageConstant         = "tool failed"
	logFieldToolConstant              = "tool"
	logFieldErrorKindConstant         = "error_kind"
	fractionalNumberTemplateConstant  = "expected a whole number, got %v"
)

// ErrOperationsNotConfigured indicates the registry has no GitHub operations backend.
var ErrOperationsNotConfigured = errors.New("tools: github operations not configured")

// GitHubOperations is the subset of githubcli.Client the tools call.
type GitHubOperations interface {
	ListIssues(executionContext context.Context, repository string, options githubcli.IssueListOptions) (json.RawMessage, error)
	ViewIssue(executionContext context.Context, repository string, number int, includeComments bool) (json.RawMessage, error)
	CommentIssue(executionContext context.Context, repository string, number int, body string) (string, error)
	CreateIssue(executionContext context.Context, repository string, options githubcli.IssueCreateOptions) (string, error)
	ListPullRequests(executionContext context.Context, repository string, options githubcli.PullRequestListOptions) (json.RawMessage, error)
	ViewPullRequest(executionContext context.Context, repository string, number int, includeDiscussion bool) (json.RawMessage, error)
	CommentPullRequest(executionContext context.Context, repository string, number int, body string) (string, error)
	CreatePullRequest(executionContext context.Context, repository string, options githubcli.PullRequestCreateOptions) (string, error)
	ReviewPullRequest(executionContext context.Context, repository string, number int, options githubcli.PullRequestReviewOptions) error
	FetchFile(executionContext context.Context, repository string, filePath string, ref string) (githubcli.FileContent, error)
}

// Definition describes a tool to an agent host.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

type tool struct {
	definition Definition
	invoke     func(executionContext context.Context, registry *Registry, parameters map[string]any) (any, error)
}

// Registry maps tool names onto GitHub operations.
type Registry struct {
	logger            *zap.Logger
	operations        GitHubOperations
	defaultRepository string
	tools             map[string]tool
}

// NewRegistry registers the built-in tools. defaultRepository fills in the repo parameter when a call omits it.
func NewRegistry(logger *zap.Logger, operations GitHubOperations, defaultRepository string) (*Registry, error) {
	if operations == nil {
		return nil, ErrOperationsNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := &Registry{
		logger:            logger,
		operations:        operations,
		defaultRepository: strings.TrimSpace(defaultRepository),
		tools:             make(map[string]tool),
	}
	for _, builtinTool := range builtinTools() {
		registry.tools[builtinTool.definition.Name] = builtinTool
	}
	return registry, nil
}

// Names lists registered tool names in sorted order.
func (registry *Registry) Names() []string {
	names := make([]string, 0, len(registry.tools))
	for name := range registry.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions lists the built-in tool definitions in name order. It needs no GitHub backend.
func Definitions() []Definition {
	builtin := builtinTools()
	definitions := make([]Definition, 0, len(builtin))
	for _, builtinTool := range builtin {
		definitions = append(definitions, builtinTool.definition)
	}
	sort.Slice(definitions, func(left int, right int) bool {
		return definitions[left].Name < definitions[right].Name
	})
	return definitions
}

// Schemas lists tool definitions in name order.
func (registry *Registry) Schemas() []Definition {
	definitions := make([]Definition, 0, len(registry.tools))
	for _, name := range registry.Names() {
		definitions = append(definitions, registry.tools[name].definition)
	}
	return definitions
}

// Invoke runs a tool and always returns a structured result; failures never escape as panics.
func (registry *Registry) Invoke(executionContext context.Context, name string, parameters map[string]any) (result Result) {
	registeredTool, exists := registry.tools[name]
	if !exists {
		return failure(ErrorKindUnknownTool, fmt.Sprintf(unknownToolTemplateConstant, name))
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result = failure(ErrorKindInternal, fmt.Sprintf(panicTemplateConstant, name, recovered))
			registry.logger.Error(toolFailedMessageConstant, zap.String(logFieldToolConstant, name), zap.String(logFieldErrorKindConstant, string(result.ErrorKind)))
		}
	}()

	registry.logger.Debug(toolInvokedMessageConstant, zap.String(logFieldToolConstant, name))
	output, invokeError := registeredTool.invoke(executionContext, registry, parameters)
	if invokeError != nil {
		result = failure(Classify(invokeError), invokeError.Error())
		registry.logger.Warn(toolFailedMessageConstant, zap.String(logFieldToolConstant, name), zap.String(logFieldErrorKindConstant, string(result.ErrorKind)), zap.Error(invokeError))
		return result
	}

	encodedOutput, encodeError := encodeOutput(output)
	if encodeError != nil {
		return failure(ErrorKindInternal, fmt.Sprintf(outputEncodingTemplateConstant, name, encodeError))
	}
	return Result{Success: true, Output: encodedOutput}
}

func (registry *Registry) repository(requested string) string {
	trimmedRepository := strings.TrimSpace(requested)
	if len(trimmedRepository) > 0 {
		return trimmedRepository
	}
	return registry.defaultRepository
}

// define binds a typed parameter struct to a handler and derives its schema.
func define[Parameters any](name string, description string, handler func(context.Context, *Registry, Parameters) (any, error)) tool {
	reflector := jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  false,
	}
	var zeroParameters Parameters
	schema := reflector.Reflect(&zeroParameters)
	schema.Version = ""

	return tool{
		definition: Definition{Name: name, Description: description, InputSchema: schema},
		invoke: func(executionContext context.Context, registry *Registry, rawParameters map[string]any) (any, error) {
			var parameters Parameters
			if decodeError := decodeParameters(rawParameters, &parameters); decodeError != nil {
				return nil, ParameterError{Tool: name, Cause: decodeError}
			}
			return handler(executionContext, registry, parameters)
		},
	}
}

func decodeParameters(rawParameters map[string]any, target any) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      target,
		TagName:     parameterTagNameConstant,
		DecodeHook:  wholeNumberHook,
		ErrorUnused: true,
	})
	if decoderError != nil {
		return decoderError
	}
	if rawParameters == nil {
		rawParameters = map[string]any{}
	}
	return decoder.Decode(rawParameters)
}

// wholeNumberHook accepts JSON numbers for integer fields only when they carry no fraction.
func wholeNumberHook(sourceType reflect.Type, targetType reflect.Type, data any) (any, error) {
	if sourceType.Kind() != reflect.Float64 {
		return data, nil
	}
	switch targetType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	number := data.(float64)
	if number != math.Trunc(number) || math.IsInf(number, 0) {
		return nil, fmt.Errorf(fractionalNumberTemplateConstant, number)
	}
	return int64(number), nil
}

func encodeOutput(output any) (json.RawMessage, error) {
	if rawOutput, isRaw := output.(json.RawMessage); isRaw {
		return rawOutput, nil
	}
	return json.Marshal(output)
}

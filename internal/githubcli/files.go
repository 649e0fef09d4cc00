package githubcli

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/temirov/ghbot/internal/execshell"
)

const (
	contentsEndpointTemplateConstant = "repos/%s/contents/%s"
	refQueryParameterConstant        = "ref"
	headerFlagConstant               = "-H"
	rawAcceptHeaderConstant          = "Accept: application/vnd.github.raw+json"
	currentRepositoryPlaceholder     = "{owner}/{repo}"
	pathFieldNameConstant            = "path"
	fetchFileOperationNameConstant   = OperationName("FetchFile")
)

// FileContent is a file fetched from a repository at a ref.
type FileContent struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Ref        string `json:"ref,omitempty"`
	Content    string `json:"content"`
}

// FetchFile reads raw file contents through gh api. An empty repository uses the
// repository of the working directory.
func (client *Client) FetchFile(executionContext context.Context, repository string, filePath string, ref string) (FileContent, error) {
	repositoryIdentifier, repositoryError := normalizeRepository(repository)
	if repositoryError != nil {
		return FileContent{}, repositoryError
	}
	trimmedPath := strings.Trim(strings.TrimSpace(filePath), "/")
	if pathError := requireText(pathFieldNameConstant, trimmedPath); pathError != nil {
		return FileContent{}, pathError
	}

	endpointRepository := repositoryIdentifier
	if len(endpointRepository) == 0 {
		endpointRepository = currentRepositoryPlaceholder
	}
	endpoint := fmt.Sprintf(contentsEndpointTemplateConstant, endpointRepository, escapePath(trimmedPath))
	trimmedRef := strings.TrimSpace(ref)
	if len(trimmedRef) > 0 {
		endpoint += "?" + url.Values{refQueryParameterConstant: []string{trimmedRef}}.Encode()
	}

	commandDetails := execshell.CommandDetails{
		Arguments: []string{apiSubcommandConstant, endpoint, headerFlagConstant, rawAcceptHeaderConstant},
	}
	executionResult, executionError := client.executor.ExecuteGitHubCLI(executionContext, commandDetails)
	if executionError != nil {
		return FileContent{}, OperationError{Operation: fetchFileOperationNameConstant, Cause: executionError}
	}

	return FileContent{
		Repository: repositoryIdentifier,
		Path:       trimmedPath,
		Ref:        trimmedRef,
		Content:    executionResult.StandardOutput,
	}, nil
}

func escapePath(filePath string) string {
	segments := strings.Split(filePath, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

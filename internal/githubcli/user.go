package githubcli

import (
	"context"

	"github.com/temirov/ghbot/internal/execshell"
)

const (
	userEndpointConstant              = "user"
	jqFlagConstant                    = "--jq"
	loginExpressionConstant           = ".login"
	loginFieldNameConstant            = "login"
	emptyLoginMessageConstant         = "gh api user returned no login"
	currentLoginOperationNameConstant = OperationName("CurrentLogin")
)

// CurrentLogin returns the login gh is authenticated as.
func (client *Client) CurrentLogin(executionContext context.Context) (string, error) {
	login, loginError := client.runText(executionContext, currentLoginOperationNameConstant, execshell.CommandDetails{
		Arguments: []string{apiSubcommandConstant, userEndpointConstant, jqFlagConstant, loginExpressionConstant},
	})
	if loginError != nil {
		return "", loginError
	}
	if len(login) == 0 {
		return "", OperationError{Operation: currentLoginOperationNameConstant, Cause: InvalidInputError{FieldName: loginFieldNameConstant, Message: emptyLoginMessageConstant}}
	}
	return login, nil
}

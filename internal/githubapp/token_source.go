package githubapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/temirov/ghbot/internal/credentials"
)

const (
	installationRepositoriesPathTemplate = "%s/installation/repositories?per_page=%d"
	installationRepositoriesPageSize     = 100
	tokenTypeBearerConstant              = "Bearer"
)

// InstallationStatus summarises what the installation token can reach.
type InstallationStatus struct {
	RepositoryCount int      `json:"repositoryCount"`
	Repositories    []string `json:"repositories"`
}

type installationRepositoriesResponse struct {
	TotalCount   int `json:"total_count"`
	Repositories []struct {
		FullName string `json:"full_name"`
	} `json:"repositories"`
}

type issuerTokenSource struct {
	executionContext context.Context
	issuer           *Issuer
}

func (source issuerTokenSource) Token() (*oauth2.Token, error) {
	return source.issuer.OAuth2Token(source.executionContext)
}

// OAuth2Token returns the cached installation token as an oauth2 token whose expiry is the end of the staleness window.
func (issuer *Issuer) OAuth2Token(executionContext context.Context) (*oauth2.Token, error) {
	cachedToken, tokenError := issuer.currentToken(executionContext)
	if tokenError != nil {
		return nil, tokenError
	}
	return &oauth2.Token{
		AccessToken: cachedToken.value,
		TokenType:   tokenTypeBearerConstant,
		Expiry:      cachedToken.acquiredAt.Add(issuer.staleness),
	}, nil
}

// TokenSource adapts the issuer to oauth2.TokenSource for HTTP clients that authenticate as the installation.
func (issuer *Issuer) TokenSource(executionContext context.Context) oauth2.TokenSource {
	return issuerTokenSource{executionContext: executionContext, issuer: issuer}
}

// VerifyInstallation lists repositories accessible to the installation. A 401 drops the cached token.
func (issuer *Issuer) VerifyInstallation(executionContext context.Context) (InstallationStatus, error) {
	clientContext := context.WithValue(executionContext, oauth2.HTTPClient, issuer.httpClient)
	authorizedClient := oauth2.NewClient(clientContext, issuer.TokenSource(executionContext))
	authorizedClient.Timeout = issuer.exchangeTimeout

	endpoint := fmt.Sprintf(installationRepositoriesPathTemplate, issuer.apiBaseURL, installationRepositoriesPageSize)
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, endpoint, nil)
	if requestError != nil {
		return InstallationStatus{}, AuthExchangeError{Operation: exchangeOperationVerifyConstant, Cause: requestError}
	}
	request.Header.Set(acceptHeaderNameConstant, acceptHeaderValueConstant)
	request.Header.Set(apiVersionHeaderNameConstant, apiVersionHeaderValueConstant)
	request.Header.Set(userAgentHeaderNameConstant, userAgentHeaderValueConstant)

	response, responseError := authorizedClient.Do(request)
	if responseError != nil {
		if tokenError := unwrapTokenError(responseError); tokenError != nil {
			return InstallationStatus{}, tokenError
		}
		return InstallationStatus{}, AuthExchangeError{Operation: exchangeOperationVerifyConstant, Cause: responseError}
	}
	defer response.Body.Close()

	responseBody, readError := io.ReadAll(io.LimitReader(response.Body, maximumResponseBodyBytes))
	if readError != nil {
		return InstallationStatus{}, AuthExchangeError{Operation: exchangeOperationVerifyConstant, StatusCode: response.StatusCode, Cause: readError}
	}
	if response.StatusCode == http.StatusUnauthorized {
		issuer.Invalidate()
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return InstallationStatus{}, AuthExchangeError{Operation: exchangeOperationVerifyConstant, StatusCode: response.StatusCode, Body: string(responseBody)}
	}

	var repositoriesResponse installationRepositoriesResponse
	if decodeError := json.Unmarshal(responseBody, &repositoriesResponse); decodeError != nil {
		return InstallationStatus{}, AuthExchangeError{Operation: exchangeOperationVerifyConstant, StatusCode: response.StatusCode, Body: string(responseBody), Cause: decodeError}
	}

	status := InstallationStatus{RepositoryCount: repositoriesResponse.TotalCount}
	for _, repository := range repositoriesResponse.Repositories {
		status.Repositories = append(status.Repositories, repository.FullName)
	}
	return status, nil
}

// unwrapTokenError recovers issuer failures from the url.Error wrapping applied by http.Client.
func unwrapTokenError(requestError error) error {
	var configurationError credentials.ConfigurationError
	if errors.As(requestError, &configurationError) {
		return configurationError
	}
	var exchangeError AuthExchangeError
	if errors.As(requestError, &exchangeError) {
		return exchangeError
	}
	return nil
}

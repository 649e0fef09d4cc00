package githubapp

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/credentials"
)

// Defaults applied by NewIssuer.
const (
	DefaultAPIBaseURL      = "https://api.github.com"
	DefaultStaleness       = 50 * time.Minute
	DefaultExchangeTimeout = 30 * time.Second
)

const (
	accessTokensPathTemplateConstant   = "%s/app/installations/%d/access_tokens"
	repositoryInstallationPathTemplate = "%s/repos/%s/installation"
	acceptHeaderNameConstant           = "Accept"
	acceptHeaderValueConstant          = "application/vnd.github+json"
	apiVersionHeaderNameConstant       = "X-GitHub-Api-Version"
	apiVersionHeaderValueConstant      = "2022-11-28"
	authorizationHeaderNameConstant    = "Authorization"
	bearerPrefixConstant               = "Bearer "
	userAgentHeaderNameConstant        = "User-Agent"
	userAgentHeaderValueConstant       = "ghbot"
	maximumResponseBodyBytes           = 64 * 1024
	credentialsFieldConstant           = "app id, installation id, and private key"
	credentialsMissingMessageConstant  = "not configured"
	privateKeyFieldConstant            = "private key"
	emptyTokenMessageConstant          = "response did not contain a token"
	tokenCachedMessageConstant         = "installation token acquired"
	tokenReusedMessageConstant         = "installation token reused"
	tokenInvalidatedMessageConstant    = "installation token invalidated"
	installationResolvedMessage        = "installation resolved from repository"
	logFieldInstallationIDConstant     = "installation_id"
	logFieldRepositoryConstant         = "repository"
	logFieldTokenAgeConstant           = "token_age"
)

type installationToken struct {
	value      string
	acquiredAt time.Time
}

type accessTokenResponse struct {
	Token string `json:"token"`
}

type installationResponse struct {
	ID int64 `json:"id"`
}

// Issuer mints and caches GitHub App installation tokens. A cached token is reused until it
// reaches the staleness window, independent of the expiry GitHub reports.
type Issuer struct {
	mutex           sync.Mutex
	credentials     credentials.AppCredentials
	privateKey      *rsa.PrivateKey
	installationID  int64
	cachedToken     *installationToken
	httpClient      *http.Client
	apiBaseURL      string
	staleness       time.Duration
	exchangeTimeout time.Duration
	clock           func() time.Time
	logger          *zap.Logger
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithHTTPClient overrides the HTTP client used for exchanges.
func WithHTTPClient(httpClient *http.Client) IssuerOption {
	return func(issuer *Issuer) {
		if httpClient != nil {
			issuer.httpClient = httpClient
		}
	}
}

// WithAPIBaseURL points the issuer at a different GitHub API host.
func WithAPIBaseURL(apiBaseURL string) IssuerOption {
	return func(issuer *Issuer) {
		trimmedURL := strings.TrimRight(strings.TrimSpace(apiBaseURL), "/")
		if len(trimmedURL) > 0 {
			issuer.apiBaseURL = trimmedURL
		}
	}
}

// WithClock injects the time source.
func WithClock(clock func() time.Time) IssuerOption {
	return func(issuer *Issuer) {
		if clock != nil {
			issuer.clock = clock
		}
	}
}

// WithStaleness changes how long a token is reused.
func WithStaleness(staleness time.Duration) IssuerOption {
	return func(issuer *Issuer) {
		if staleness > 0 {
			issuer.staleness = staleness
		}
	}
}

// WithExchangeTimeout bounds each HTTP exchange.
func WithExchangeTimeout(timeout time.Duration) IssuerOption {
	return func(issuer *Issuer) {
		if timeout > 0 {
			issuer.exchangeTimeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) IssuerOption {
	return func(issuer *Issuer) {
		if logger != nil {
			issuer.logger = logger
		}
	}
}

// NewIssuer constructs an issuer. Incomplete credentials are accepted; Token then fails with a
// credentials.ConfigurationError before touching the network.
func NewIssuer(appCredentials credentials.AppCredentials, options ...IssuerOption) *Issuer {
	issuer := &Issuer{
		credentials:     appCredentials,
		installationID:  appCredentials.InstallationID,
		httpClient:      http.DefaultClient,
		apiBaseURL:      DefaultAPIBaseURL,
		staleness:       DefaultStaleness,
		exchangeTimeout: DefaultExchangeTimeout,
		clock:           time.Now,
		logger:          zap.NewNop(),
	}
	for _, option := range options {
		option(issuer)
	}
	return issuer
}

// Credentials returns the record the issuer currently signs with.
func (issuer *Issuer) Credentials() credentials.AppCredentials {
	issuer.mutex.Lock()
	defer issuer.mutex.Unlock()
	return issuer.credentials
}

// SetCredentials swaps the signing record and drops any cached token when the record changed.
func (issuer *Issuer) SetCredentials(appCredentials credentials.AppCredentials) {
	issuer.mutex.Lock()
	defer issuer.mutex.Unlock()
	if issuer.credentials.Equal(appCredentials) {
		issuer.credentials = appCredentials
		return
	}
	issuer.credentials = appCredentials
	issuer.privateKey = nil
	issuer.installationID = appCredentials.InstallationID
	issuer.cachedToken = nil
}

// Invalidate discards the cached token so the next Token call performs a fresh exchange.
func (issuer *Issuer) Invalidate() {
	issuer.mutex.Lock()
	defer issuer.mutex.Unlock()
	if issuer.cachedToken != nil {
		issuer.logger.Debug(tokenInvalidatedMessageConstant)
	}
	issuer.cachedToken = nil
}

// Token returns an installation token, exchanging a fresh App assertion when none is cached
// or the cached one has reached the staleness window.
func (issuer *Issuer) Token(executionContext context.Context) (string, error) {
	cachedToken, tokenError := issuer.currentToken(executionContext)
	if tokenError != nil {
		return "", tokenError
	}
	return cachedToken.value, nil
}

// currentToken holds the mutex across the installation lookup and the exchange, so concurrent
// callers wait for one refresh instead of each minting a token.
func (issuer *Issuer) currentToken(executionContext context.Context) (installationToken, error) {
	issuer.mutex.Lock()
	defer issuer.mutex.Unlock()

	now := issuer.clock()
	if issuer.cachedToken != nil {
		tokenAge := now.Sub(issuer.cachedToken.acquiredAt)
		if tokenAge < issuer.staleness {
			issuer.logger.Debug(tokenReusedMessageConstant, zap.Duration(logFieldTokenAgeConstant, tokenAge))
			return *issuer.cachedToken, nil
		}
	}

	privateKey, keyError := issuer.signingKey()
	if keyError != nil {
		return installationToken{}, keyError
	}

	installationID, installationError := issuer.resolveInstallation(executionContext, privateKey, now)
	if installationError != nil {
		return installationToken{}, installationError
	}

	assertion, signError := SignAssertion(issuer.credentials.AppID, privateKey, now)
	if signError != nil {
		return installationToken{}, credentials.ConfigurationError{Source: issuer.credentials.Source, Field: privateKeyFieldConstant, Message: signError.Error()}
	}

	var tokenResponse accessTokenResponse
	endpoint := fmt.Sprintf(accessTokensPathTemplateConstant, issuer.apiBaseURL, installationID)
	if exchangeError := issuer.exchange(executionContext, http.MethodPost, endpoint, bearerPrefixConstant+assertion, exchangeOperationTokenConstant, &tokenResponse); exchangeError != nil {
		return installationToken{}, exchangeError
	}
	if len(tokenResponse.Token) == 0 {
		return installationToken{}, AuthExchangeError{Operation: exchangeOperationTokenConstant, StatusCode: http.StatusOK, Body: emptyTokenMessageConstant}
	}

	issuer.cachedToken = &installationToken{value: tokenResponse.Token, acquiredAt: now}
	issuer.logger.Debug(tokenCachedMessageConstant, zap.Int64(logFieldInstallationIDConstant, installationID))
	return *issuer.cachedToken, nil
}

func (issuer *Issuer) signingKey() (*rsa.PrivateKey, error) {
	if !issuer.credentials.Complete() {
		return nil, credentials.ConfigurationError{Source: issuer.credentials.Source, Field: credentialsFieldConstant, Message: credentialsMissingMessageConstant}
	}
	if issuer.privateKey != nil {
		return issuer.privateKey, nil
	}
	privateKey, parseError := ParsePrivateKey(issuer.credentials.PrivateKeyPEM)
	if parseError != nil {
		return nil, credentials.ConfigurationError{Source: issuer.credentials.Source, Field: privateKeyFieldConstant, Message: parseError.Error()}
	}
	issuer.privateKey = privateKey
	return privateKey, nil
}

// resolveInstallation looks the installation up by repository when no id was configured.
func (issuer *Issuer) resolveInstallation(executionContext context.Context, privateKey *rsa.PrivateKey, now time.Time) (int64, error) {
	if issuer.installationID > 0 {
		return issuer.installationID, nil
	}

	repository := strings.TrimSpace(issuer.credentials.Identity.Repository)
	assertion, signError := SignAssertion(issuer.credentials.AppID, privateKey, now)
	if signError != nil {
		return 0, credentials.ConfigurationError{Source: issuer.credentials.Source, Field: privateKeyFieldConstant, Message: signError.Error()}
	}

	var lookupResponse installationResponse
	endpoint := fmt.Sprintf(repositoryInstallationPathTemplate, issuer.apiBaseURL, escapePathSegments(repository))
	if exchangeError := issuer.exchange(executionContext, http.MethodGet, endpoint, bearerPrefixConstant+assertion, exchangeOperationLookupConstant, &lookupResponse); exchangeError != nil {
		return 0, exchangeError
	}
	if lookupResponse.ID <= 0 {
		return 0, AuthExchangeError{Operation: exchangeOperationLookupConstant, StatusCode: http.StatusOK, Body: responseBodyUnavailableConstant}
	}

	issuer.installationID = lookupResponse.ID
	issuer.logger.Info(installationResolvedMessage, zap.String(logFieldRepositoryConstant, repository), zap.Int64(logFieldInstallationIDConstant, lookupResponse.ID))
	return lookupResponse.ID, nil
}

func (issuer *Issuer) exchange(executionContext context.Context, method string, endpoint string, authorization string, operation string, target any) error {
	requestContext, cancel := context.WithTimeout(executionContext, issuer.exchangeTimeout)
	defer cancel()

	request, requestError := http.NewRequestWithContext(requestContext, method, endpoint, nil)
	if requestError != nil {
		return AuthExchangeError{Operation: operation, Cause: requestError}
	}
	request.Header.Set(acceptHeaderNameConstant, acceptHeaderValueConstant)
	request.Header.Set(apiVersionHeaderNameConstant, apiVersionHeaderValueConstant)
	request.Header.Set(userAgentHeaderNameConstant, userAgentHeaderValueConstant)
	if len(authorization) > 0 {
		request.Header.Set(authorizationHeaderNameConstant, authorization)
	}

	response, responseError := issuer.httpClient.Do(request)
	if responseError != nil {
		return AuthExchangeError{Operation: operation, Cause: responseError}
	}
	defer response.Body.Close()

	responseBody, readError := io.ReadAll(io.LimitReader(response.Body, maximumResponseBodyBytes))
	if readError != nil {
		return AuthExchangeError{Operation: operation, StatusCode: response.StatusCode, Cause: readError}
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return AuthExchangeError{Operation: operation, StatusCode: response.StatusCode, Body: string(responseBody)}
	}
	if target == nil {
		return nil
	}
	if decodeError := json.Unmarshal(responseBody, target); decodeError != nil {
		return AuthExchangeError{Operation: operation, StatusCode: response.StatusCode, Body: string(responseBody), Cause: decodeError}
	}
	return nil
}

func escapePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for index, segment := range segments {
		segments[index] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

package githubapp_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/githubapp"
)

const (
	testAppIdentifierConstant          = int64(12345)
	testInstallationIdentifierConstant = int64(67890)
	testAccessTokensPathConstant       = "/app/installations/67890/access_tokens"
	testInstallationTokenConstant      = "ghs_abc"
	testRepositoryConstant             = "owner/example"
)

var (
	testKeyOnce       sync.Once
	testPrivateKey    *rsa.PrivateKey
	testPrivateKeyPEM []byte
)

func loadTestKey(testInstance *testing.T) (*rsa.PrivateKey, []byte) {
	testInstance.Helper()
	testKeyOnce.Do(func() {
		generatedKey, generateError := rsa.GenerateKey(rand.Reader, 2048)
		if generateError != nil {
			panic(generateError)
		}
		testPrivateKey = generatedKey
		testPrivateKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(generatedKey)})
	})
	return testPrivateKey, testPrivateKeyPEM
}

type manualClock struct {
	current time.Time
}

func (clock *manualClock) now() time.Time { return clock.current }

func (clock *manualClock) advance(duration time.Duration) { clock.current = clock.current.Add(duration) }

type tokenServer struct {
	server         *httptest.Server
	tokenRequests  atomic.Int32
	lookupRequests atomic.Int32
	statusCode     int
	responseBody   string
	authorizations []string
	mutex          sync.Mutex
}

func newTokenServer(testInstance *testing.T, statusCode int, responseBody string) *tokenServer {
	testInstance.Helper()
	server := &tokenServer{statusCode: statusCode, responseBody: responseBody}
	mux := http.NewServeMux()
	mux.HandleFunc(testAccessTokensPathConstant, func(responseWriter http.ResponseWriter, request *http.Request) {
		server.tokenRequests.Add(1)
		if request.Method != http.MethodPost {
			responseWriter.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		server.mutex.Lock()
		server.authorizations = append(server.authorizations, request.Header.Get("Authorization"))
		server.mutex.Unlock()
		responseWriter.WriteHeader(server.statusCode)
		_, _ = responseWriter.Write([]byte(server.responseBody))
	})
	mux.HandleFunc("/repos/owner/example/installation", func(responseWriter http.ResponseWriter, request *http.Request) {
		server.lookupRequests.Add(1)
		_, _ = responseWriter.Write([]byte(`{"id":67890}`))
	})
	mux.HandleFunc("/installation/repositories", func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer "+testInstallationTokenConstant {
			responseWriter.WriteHeader(http.StatusUnauthorized)
			_, _ = responseWriter.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		_, _ = responseWriter.Write([]byte(`{"total_count":1,"repositories":[{"full_name":"owner/example"}]}`))
	})
	server.server = httptest.NewServer(mux)
	testInstance.Cleanup(server.server.Close)
	return server
}

func newTestIssuer(testInstance *testing.T, server *tokenServer, clock *manualClock, appCredentials credentials.AppCredentials) *githubapp.Issuer {
	testInstance.Helper()
	return githubapp.NewIssuer(
		appCredentials,
		githubapp.WithAPIBaseURL(server.server.URL),
		githubapp.WithHTTPClient(server.server.Client()),
		githubapp.WithClock(clock.now),
	)
}

func completeCredentials(testInstance *testing.T) credentials.AppCredentials {
	_, privateKeyPEM := loadTestKey(testInstance)
	return credentials.AppCredentials{
		AppID:          testAppIdentifierConstant,
		InstallationID: testInstallationIdentifierConstant,
		PrivateKeyPEM:  privateKeyPEM,
	}
}

func TestIssuerExchangesSignedAssertion(testInstance *testing.T) {
	privateKey, _ := loadTestKey(testInstance)
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc","expires_at":"2030-01-01T00:00:00Z"}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

	token, tokenError := issuer.Token(context.Background())
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, testInstallationTokenConstant, token)
	require.Len(testInstance, server.authorizations, 1)
	require.True(testInstance, strings.HasPrefix(server.authorizations[0], "Bearer "))

	parser := jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	_, parseError := parser.ParseWithClaims(strings.TrimPrefix(server.authorizations[0], "Bearer "), claims, func(*jwt.Token) (any, error) {
		return &privateKey.PublicKey, nil
	})
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, "12345", claims.Issuer)
	require.Equal(testInstance, clock.current.Add(-60*time.Second).Unix(), claims.IssuedAt.Unix())
	require.Equal(testInstance, clock.current.Add(600*time.Second).Unix(), claims.ExpiresAt.Unix())
}

func TestIssuerCachesWithinStalenessWindow(testInstance *testing.T) {
	testCases := []struct {
		name             string
		advance          time.Duration
		expectedRequests int32
	}{
		{name: "within_window", advance: 49 * time.Minute, expectedRequests: 1},
		{name: "window_boundary", advance: 50 * time.Minute, expectedRequests: 2},
		{name: "after_window", advance: 55 * time.Minute, expectedRequests: 2},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
			clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
			issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

			_, firstError := issuer.Token(context.Background())
			require.NoError(testInstance, firstError)
			clock.advance(testCase.advance)
			_, secondError := issuer.Token(context.Background())
			require.NoError(testInstance, secondError)

			require.Equal(testInstance, testCase.expectedRequests, server.tokenRequests.Load())
		})
	}
}

func TestIssuerConcurrentCallersShareOneExchange(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

	const callerCount = 8
	tokens := make([]string, callerCount)
	tokenErrors := make([]error, callerCount)
	var waitGroup sync.WaitGroup
	for callerIndex := 0; callerIndex < callerCount; callerIndex++ {
		waitGroup.Add(1)
		go func(index int) {
			defer waitGroup.Done()
			tokens[index], tokenErrors[index] = issuer.Token(context.Background())
		}(callerIndex)
	}
	waitGroup.Wait()

	for callerIndex := 0; callerIndex < callerCount; callerIndex++ {
		require.NoError(testInstance, tokenErrors[callerIndex])
		require.Equal(testInstance, testInstallationTokenConstant, tokens[callerIndex])
	}
	require.Equal(testInstance, int32(1), server.tokenRequests.Load())
}

func TestIssuerInvalidateForcesExchange(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

	_, firstError := issuer.Token(context.Background())
	require.NoError(testInstance, firstError)
	issuer.Invalidate()
	_, secondError := issuer.Token(context.Background())
	require.NoError(testInstance, secondError)

	require.Equal(testInstance, int32(2), server.tokenRequests.Load())
}

func TestIssuerSetCredentialsDropsCacheOnChange(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	appCredentials := completeCredentials(testInstance)
	issuer := newTestIssuer(testInstance, server, clock, appCredentials)

	_, firstError := issuer.Token(context.Background())
	require.NoError(testInstance, firstError)

	issuer.SetCredentials(appCredentials)
	_, sameError := issuer.Token(context.Background())
	require.NoError(testInstance, sameError)
	require.Equal(testInstance, int32(1), server.tokenRequests.Load())

	changedCredentials := appCredentials
	changedCredentials.AppID = 54321
	issuer.SetCredentials(changedCredentials)
	_, changedError := issuer.Token(context.Background())
	require.NoError(testInstance, changedError)
	require.Equal(testInstance, int32(2), server.tokenRequests.Load())
}

func TestIssuerReportsExchangeFailure(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusUnauthorized, `{"message":"A JSON web token could not be decoded"}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

	_, tokenError := issuer.Token(context.Background())
	require.Error(testInstance, tokenError)

	var exchangeError githubapp.AuthExchangeError
	require.ErrorAs(testInstance, tokenError, &exchangeError)
	require.Equal(testInstance, http.StatusUnauthorized, exchangeError.StatusCode)
	require.Contains(testInstance, exchangeError.Body, "could not be decoded")
	require.Contains(testInstance, tokenError.Error(), "401")
}

func TestIssuerRejectsEmptyTokenResponse(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

	_, tokenError := issuer.Token(context.Background())
	require.ErrorAs(testInstance, tokenError, &githubapp.AuthExchangeError{})
}

func TestIssuerConfigurationErrorsSkipNetwork(testInstance *testing.T) {
	testCases := []struct {
		name        string
		credentials credentials.AppCredentials
	}{
		{name: "empty", credentials: credentials.AppCredentials{}},
		{name: "missing_key", credentials: credentials.AppCredentials{AppID: testAppIdentifierConstant, InstallationID: testInstallationIdentifierConstant}},
		{name: "invalid_key", credentials: credentials.AppCredentials{AppID: testAppIdentifierConstant, InstallationID: testInstallationIdentifierConstant, PrivateKeyPEM: []byte("garbage")}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
			clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
			issuer := newTestIssuer(testInstance, server, clock, testCase.credentials)

			_, tokenError := issuer.Token(context.Background())
			require.ErrorAs(testInstance, tokenError, &credentials.ConfigurationError{})
			require.Zero(testInstance, server.tokenRequests.Load())
		})
	}
}

func TestIssuerResolvesInstallationFromRepository(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
	clock := &manualClock{current: time.Unix(1_700_000_000, 0)}
	appCredentials := completeCredentials(testInstance)
	appCredentials.InstallationID = 0
	appCredentials.Identity.Repository = testRepositoryConstant
	issuer := newTestIssuer(testInstance, server, clock, appCredentials)

	token, tokenError := issuer.Token(context.Background())
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, testInstallationTokenConstant, token)

	issuer.Invalidate()
	_, secondError := issuer.Token(context.Background())
	require.NoError(testInstance, secondError)

	require.Equal(testInstance, int32(1), server.lookupRequests.Load())
	require.Equal(testInstance, int32(2), server.tokenRequests.Load())
}

func TestIssuerOAuth2TokenAndVerification(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
	clock := &manualClock{current: time.Now()}
	issuer := newTestIssuer(testInstance, server, clock, completeCredentials(testInstance))

	oauthToken, tokenError := issuer.TokenSource(context.Background()).Token()
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, testInstallationTokenConstant, oauthToken.AccessToken)
	require.Equal(testInstance, clock.current.Add(githubapp.DefaultStaleness), oauthToken.Expiry)

	status, verifyError := issuer.VerifyInstallation(context.Background())
	require.NoError(testInstance, verifyError)
	require.Equal(testInstance, 1, status.RepositoryCount)
	require.Equal(testInstance, []string{testRepositoryConstant}, status.Repositories)
	require.Equal(testInstance, int32(1), server.tokenRequests.Load())
}

func TestIssuerVerificationSurfacesConfigurationError(testInstance *testing.T) {
	server := newTokenServer(testInstance, http.StatusCreated, `{"token":"ghs_abc"}`)
	clock := &manualClock{current: time.Now()}
	issuer := newTestIssuer(testInstance, server, clock, credentials.AppCredentials{})

	_, verifyError := issuer.VerifyInstallation(context.Background())
	require.ErrorAs(testInstance, verifyError, &credentials.ConfigurationError{})
}

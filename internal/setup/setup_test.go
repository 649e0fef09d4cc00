package setup_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/setup"
)

const (
	testHumanLoginConstant = "octocat"
	testRepositoryConstant = "owner/example"
)

type stubLoginLookup struct {
	login       string
	lookupError error
}

func (lookup stubLoginLookup) CurrentLogin(context.Context) (string, error) {
	return lookup.login, lookup.lookupError
}

func generatePrivateKeyPEM(testInstance *testing.T) []byte {
	testInstance.Helper()
	privateKey, generationError := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(testInstance, generationError)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
}

func newService(testInstance *testing.T) (*setup.Service, *credentials.FileStore, *credentials.Keychain) {
	testInstance.Helper()
	keyring.MockInit()
	fileStore := credentials.NewFileStore(filepath.Join(testInstance.TempDir(), "ghbot", "credentials.json"))
	keychain := credentials.NewKeychain(nil)
	service, creationError := setup.NewService(zap.NewNop(), fileStore, keychain)
	require.NoError(testInstance, creationError)
	return service, fileStore, keychain
}

func TestNewServiceRequiresStores(testInstance *testing.T) {
	_, creationError := setup.NewService(zap.NewNop(), nil, nil)
	require.ErrorIs(testInstance, creationError, setup.ErrDependenciesNotConfigured)
}

func TestIOPrompterAsk(testInstance *testing.T) {
	var output strings.Builder
	prompter := setup.NewIOPrompter(strings.NewReader("answer\n\n"), &output)

	firstAnswer, firstError := prompter.Ask("First", "")
	require.NoError(testInstance, firstError)
	require.Equal(testInstance, "answer", firstAnswer)

	secondAnswer, secondError := prompter.Ask("Second", "fallback")
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, "fallback", secondAnswer)

	thirdAnswer, thirdError := prompter.Ask("Third", "at-eof")
	require.NoError(testInstance, thirdError)
	require.Equal(testInstance, "at-eof", thirdAnswer)

	require.Equal(testInstance, "First: Second [fallback]: Third [at-eof]: ", output.String())
}

func TestCollect(testInstance *testing.T) {
	testCases := []struct {
		name            string
		input           string
		defaults        setup.Request
		lookup          setup.LoginLookup
		expectedRequest setup.Request
		expectError     bool
	}{
		{
			name:   "prepopulates_human_from_lookup",
			input:  "12\n34\n~/keys/app.pem\n\nagent-one\nowner/example\n",
			lookup: stubLoginLookup{login: testHumanLoginConstant},
			expectedRequest: setup.Request{
				AppID:          12,
				InstallationID: 34,
				PrivateKeyPath: "~/keys/app.pem",
				Human:          testHumanLoginConstant,
				Agent:          "agent-one",
				Repository:     testRepositoryConstant,
			},
		},
		{
			name:   "lookup_failure_is_ignored",
			input:  "12\n\n/tmp/app.pem\nsomeone\n\nowner/example\n",
			lookup: stubLoginLookup{lookupError: errors.New("gh: not logged in")},
			expectedRequest: setup.Request{
				AppID:          12,
				PrivateKeyPath: "/tmp/app.pem",
				Human:          "someone",
				Repository:     testRepositoryConstant,
			},
		},
		{
			name:     "defaults_accepted",
			input:    "\n\n\n\n\n",
			defaults: setup.Request{AppID: 5, InstallationID: 6, PrivateKeyPEM: []byte("pem"), Human: "human", Agent: "agent"},
			expectedRequest: setup.Request{
				AppID:          5,
				InstallationID: 6,
				PrivateKeyPEM:  []byte("pem"),
				Human:          "human",
				Agent:          "agent",
			},
		},
		{
			name:        "non_numeric_app_id",
			input:       "abc\n",
			expectError: true,
		},
		{
			name:        "missing_app_id",
			input:       "\n",
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			service, _, _ := newService(testInstance)
			prompter := setup.NewIOPrompter(strings.NewReader(testCase.input), nil)

			request, collectError := service.Collect(context.Background(), prompter, testCase.defaults, testCase.lookup)
			if testCase.expectError {
				require.Error(testInstance, collectError)
				require.ErrorAs(testInstance, collectError, &credentials.ConfigurationError{})
				return
			}
			require.NoError(testInstance, collectError)
			require.Equal(testInstance, testCase.expectedRequest, request)
		})
	}
}

func TestSavePersistsBothStores(testInstance *testing.T) {
	service, fileStore, keychain := newService(testInstance)
	privateKeyPEM := generatePrivateKeyPEM(testInstance)
	keyPath := filepath.Join(testInstance.TempDir(), "app.pem")
	require.NoError(testInstance, os.WriteFile(keyPath, privateKeyPEM, 0o600))

	savedCredentials, saveError := service.Save(setup.Request{
		AppID:          12,
		InstallationID: 34,
		PrivateKeyPath: keyPath,
		Human:          " " + testHumanLoginConstant + " ",
		Repository:     testRepositoryConstant,
	})
	require.NoError(testInstance, saveError)
	require.True(testInstance, savedCredentials.Complete())
	require.Equal(testInstance, credentials.SourceStored, savedCredentials.Source)
	require.Equal(testInstance, testHumanLoginConstant, savedCredentials.Identity.Human)

	record, found, loadError := fileStore.Load()
	require.NoError(testInstance, loadError)
	require.True(testInstance, found)
	require.Equal(testInstance, credentials.StoredRecord{AppID: 12, InstallationID: 34, Human: testHumanLoginConstant, Repository: testRepositoryConstant}, record)

	storedKey, keyFound, keyError := keychain.Load()
	require.NoError(testInstance, keyError)
	require.True(testInstance, keyFound)
	require.Equal(testInstance, privateKeyPEM, storedKey)

	resolved, configured, resolveError := credentials.NewStoredStrategy(nil, fileStore, keychain).Resolve(context.Background())
	require.NoError(testInstance, resolveError)
	require.True(testInstance, configured)
	require.True(testInstance, resolved.Equal(savedCredentials))
}

func TestSaveValidation(testInstance *testing.T) {
	validKey := generatePrivateKeyPEM(testInstance)
	testCases := []struct {
		name          string
		request       setup.Request
		expectedField string
	}{
		{
			name:          "missing_app_id",
			request:       setup.Request{InstallationID: 1, PrivateKeyPEM: validKey},
			expectedField: "app id",
		},
		{
			name:          "no_installation_target",
			request:       setup.Request{AppID: 1, PrivateKeyPEM: validKey},
			expectedField: "installation id",
		},
		{
			name:          "missing_key",
			request:       setup.Request{AppID: 1, InstallationID: 2},
			expectedField: "private key",
		},
		{
			name:          "unreadable_key_path",
			request:       setup.Request{AppID: 1, InstallationID: 2, PrivateKeyPath: "/nonexistent/app.pem"},
			expectedField: "private key",
		},
		{
			name:          "invalid_key",
			request:       setup.Request{AppID: 1, Repository: testRepositoryConstant, PrivateKeyPEM: []byte("not a key")},
			expectedField: "private key",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			service, fileStore, _ := newService(testInstance)
			_, saveError := service.Save(testCase.request)
			require.Error(testInstance, saveError)

			var configurationError credentials.ConfigurationError
			require.ErrorAs(testInstance, saveError, &configurationError)
			require.Equal(testInstance, testCase.expectedField, configurationError.Field)

			_, found, loadError := fileStore.Load()
			require.NoError(testInstance, loadError)
			require.False(testInstance, found)
		})
	}
}

func TestClearRemovesEverything(testInstance *testing.T) {
	service, fileStore, keychain := newService(testInstance)
	_, saveError := service.Save(setup.Request{AppID: 1, InstallationID: 2, PrivateKeyPEM: generatePrivateKeyPEM(testInstance)})
	require.NoError(testInstance, saveError)

	require.NoError(testInstance, service.Clear())
	require.NoError(testInstance, service.Clear())

	_, found, loadError := fileStore.Load()
	require.NoError(testInstance, loadError)
	require.False(testInstance, found)

	_, keyFound, keyError := keychain.Load()
	require.NoError(testInstance, keyError)
	require.False(testInstance, keyFound)
}

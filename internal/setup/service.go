package setup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/credentials"
	"github.com/temirov/ghbot/internal/githubapp"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	appIDLabelConstant                = "GitHub App ID"
	installationIDLabelConstant       = "Installation ID (blank to look up by repository)"
	privateKeyPathLabelConstant       = "Path to the App private key (.pem)"
	humanLabelConstant                = "GitHub login of the human the bot acts for"
	agentLabelConstant                = "Agent name"
	repositoryLabelConstant           = "Default repository (owner/name)"
	appIDFieldConstant                = "app id"
	installationIDFieldConstant       = "installation id"
	privateKeyFieldConstant           = "private key"
	positiveIntegerMessageConstant    = "must be a positive integer"
	installationTargetMessageConstant = "required unless a repository is given"
	privateKeyRequiredMessageConstant = "a key file or PEM value is required"
	privateKeyReadTemplateConstant    = "cannot read %s: %v"
	loginLookupFailedMessageConstant  = "could not prepopulate human login"
	credentialsSavedMessageConstant   = "github app credentials saved"
	credentialsClearFailedMessage     = "could not remove stored credential"
	credentialsClearedMessageConstant = "github app credentials cleared"
	logFieldPathConstant              = "path"
	logFieldAppIDConstant             = "app_id"
)

// ErrDependenciesNotConfigured indicates the service lacks a store.
var ErrDependenciesNotConfigured = errors.New("setup: credential stores not configured")

// Prompter asks one question at a time.
type Prompter interface {
	Ask(label string, defaultValue string) (string, error)
}

// LoginLookup discovers the login of the currently authenticated gh user.
type LoginLookup interface {
	CurrentLogin(executionContext context.Context) (string, error)
}

// Request is the information persisted by Save.
type Request struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	PrivateKeyPEM  []byte
	Human          string
	Agent          string
	Repository     string
}

// Service collects and persists GitHub App credentials.
type Service struct {
	logger                *zap.Logger
	fileStore             *credentials.FileStore
	keychain              *credentials.Keychain
	homeDirectoryProvider utils.HomeDirectoryProvider
}

// NewService wires the stores used by Save and Clear.
func NewService(logger *zap.Logger, fileStore *credentials.FileStore, keychain *credentials.Keychain) (*Service, error) {
	if fileStore == nil || keychain == nil {
		return nil, ErrDependenciesNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, fileStore: fileStore, keychain: keychain, homeDirectoryProvider: os.UserHomeDir}, nil
}

// Collect fills the blanks of defaults by prompting. The human login is prepopulated from lookup;
// a failed lookup only leaves the default empty.
func (service *Service) Collect(executionContext context.Context, prompter Prompter, defaults Request, lookup LoginLookup) (Request, error) {
	request := defaults

	if len(strings.TrimSpace(request.Human)) == 0 && lookup != nil {
		login, lookupError := lookup.CurrentLogin(executionContext)
		if lookupError != nil {
			service.logger.Debug(loginLookupFailedMessageConstant, zap.Error(lookupError))
		} else {
			request.Human = login
		}
	}

	appIDAnswer, appIDError := prompter.Ask(appIDLabelConstant, formatIdentifier(request.AppID))
	if appIDError != nil {
		return Request{}, appIDError
	}
	if request.AppID, appIDError = parseIdentifier(appIDFieldConstant, appIDAnswer, true); appIDError != nil {
		return Request{}, appIDError
	}

	installationAnswer, installationError := prompter.Ask(installationIDLabelConstant, formatIdentifier(request.InstallationID))
	if installationError != nil {
		return Request{}, installationError
	}
	if request.InstallationID, installationError = parseIdentifier(installationIDFieldConstant, installationAnswer, false); installationError != nil {
		return Request{}, installationError
	}

	if len(request.PrivateKeyPEM) == 0 {
		keyPathAnswer, keyPathError := prompter.Ask(privateKeyPathLabelConstant, request.PrivateKeyPath)
		if keyPathError != nil {
			return Request{}, keyPathError
		}
		request.PrivateKeyPath = keyPathAnswer
	}

	questions := []struct {
		label  string
		target *string
	}{
		{label: humanLabelConstant, target: &request.Human},
		{label: agentLabelConstant, target: &request.Agent},
		{label: repositoryLabelConstant, target: &request.Repository},
	}
	for _, question := range questions {
		answer, askError := prompter.Ask(question.label, *question.target)
		if askError != nil {
			return Request{}, askError
		}
		*question.target = answer
	}

	return request, nil
}

// Save validates the request, stores the key in the keychain, and writes the credentials file.
func (service *Service) Save(request Request) (credentials.AppCredentials, error) {
	if request.AppID <= 0 {
		return credentials.AppCredentials{}, credentials.ConfigurationError{Field: appIDFieldConstant, Message: positiveIntegerMessageConstant}
	}
	if request.InstallationID < 0 {
		return credentials.AppCredentials{}, credentials.ConfigurationError{Field: installationIDFieldConstant, Message: positiveIntegerMessageConstant}
	}
	if request.InstallationID == 0 && len(strings.TrimSpace(request.Repository)) == 0 {
		return credentials.AppCredentials{}, credentials.ConfigurationError{Field: installationIDFieldConstant, Message: installationTargetMessageConstant}
	}

	privateKeyPEM, keyError := service.privateKey(request)
	if keyError != nil {
		return credentials.AppCredentials{}, keyError
	}
	if _, parseError := githubapp.ParsePrivateKey(privateKeyPEM); parseError != nil {
		return credentials.AppCredentials{}, credentials.ConfigurationError{Field: privateKeyFieldConstant, Message: parseError.Error()}
	}

	if storeError := service.keychain.Store(privateKeyPEM); storeError != nil {
		return credentials.AppCredentials{}, storeError
	}
	record := credentials.StoredRecord{
		AppID:          request.AppID,
		InstallationID: request.InstallationID,
		Human:          strings.TrimSpace(request.Human),
		Agent:          strings.TrimSpace(request.Agent),
		Repository:     strings.TrimSpace(request.Repository),
	}
	if saveError := service.fileStore.Save(record); saveError != nil {
		return credentials.AppCredentials{}, saveError
	}

	service.logger.Info(credentialsSavedMessageConstant, zap.String(logFieldPathConstant, service.fileStore.Path()), zap.Int64(logFieldAppIDConstant, request.AppID))
	return credentials.AppCredentials{
		AppID:          record.AppID,
		InstallationID: record.InstallationID,
		PrivateKeyPEM:  privateKeyPEM,
		Identity:       credentials.Identity{Human: record.Human, Agent: record.Agent, Repository: record.Repository},
		Source:         credentials.SourceStored,
	}, nil
}

// Clear removes the keychain entry and the credentials file. Both removals are attempted; failures are
// logged and joined.
func (service *Service) Clear() error {
	var clearErrors []error
	if keychainError := service.keychain.Delete(); keychainError != nil {
		service.logger.Warn(credentialsClearFailedMessage, zap.Error(keychainError))
		clearErrors = append(clearErrors, keychainError)
	}
	if fileError := service.fileStore.Delete(); fileError != nil {
		service.logger.Warn(credentialsClearFailedMessage, zap.Error(fileError))
		clearErrors = append(clearErrors, fileError)
	}
	if len(clearErrors) == 0 {
		service.logger.Info(credentialsClearedMessageConstant, zap.String(logFieldPathConstant, service.fileStore.Path()))
	}
	return errors.Join(clearErrors...)
}

func (service *Service) privateKey(request Request) ([]byte, error) {
	if len(request.PrivateKeyPEM) > 0 {
		return request.PrivateKeyPEM, nil
	}
	keyPath := utils.ExpandHomeDirectory(request.PrivateKeyPath, service.homeDirectoryProvider)
	if len(keyPath) == 0 {
		return nil, credentials.ConfigurationError{Field: privateKeyFieldConstant, Message: privateKeyRequiredMessageConstant}
	}
	privateKeyPEM, readError := os.ReadFile(keyPath)
	if readError != nil {
		return nil, credentials.ConfigurationError{Field: privateKeyFieldConstant, Message: fmt.Sprintf(privateKeyReadTemplateConstant, keyPath, readError)}
	}
	return privateKeyPEM, nil
}

func parseIdentifier(fieldName string, answer string, required bool) (int64, error) {
	trimmedAnswer := strings.TrimSpace(answer)
	if len(trimmedAnswer) == 0 && !required {
		return 0, nil
	}
	identifier, parseError := strconv.ParseInt(trimmedAnswer, 10, 64)
	if parseError != nil || identifier <= 0 {
		return 0, credentials.ConfigurationError{Field: fieldName, Message: positiveIntegerMessageConstant}
	}
	return identifier, nil
}

func formatIdentifier(identifier int64) string {
	if identifier <= 0 {
		return ""
	}
	return strconv.FormatInt(identifier, 10)
}

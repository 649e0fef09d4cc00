package credentials

import (
	"context"

	"go.uber.org/zap"
)

const (
	storedRecordIncompleteMessageConstant = "stored credentials incomplete"
	logFieldReasonConstant                = "reason"
	logFieldPathConstant                  = "path"
	storedAppIdentifierReasonConstant     = "appId must be a positive integer"
	storedPrivateKeyMissingReasonConstant = "private key not found in keychain"
	storedRecordPartialReasonConstant     = "record lacks a private key or an installation target"
)

// StoredStrategy combines the JSON credentials file with the keychain-held private key.
type StoredStrategy struct {
	logger    *zap.Logger
	fileStore *FileStore
	keychain  *Keychain
}

// NewStoredStrategy builds a strategy from its two halves. A nil logger discards output.
func NewStoredStrategy(logger *zap.Logger, fileStore *FileStore, keychain *Keychain) *StoredStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoredStrategy{logger: logger, fileStore: fileStore, keychain: keychain}
}

// Source implements Strategy.
func (strategy *StoredStrategy) Source() Source {
	return SourceStored
}

// Resolve implements Strategy. An absent or incomplete record means not configured; only
// read and decode failures are errors.
func (strategy *StoredStrategy) Resolve(resolutionContext context.Context) (AppCredentials, bool, error) {
	if strategy.fileStore == nil || strategy.keychain == nil {
		return AppCredentials{}, false, nil
	}

	record, recordFound, loadError := strategy.fileStore.Load()
	if loadError != nil {
		return AppCredentials{}, false, loadError
	}
	if !recordFound {
		return AppCredentials{}, false, nil
	}
	if record.AppID <= 0 {
		return strategy.incomplete(storedAppIdentifierReasonConstant)
	}

	privateKeyPEM, keyFound, keyError := strategy.keychain.Load()
	if keyError != nil {
		return AppCredentials{}, false, keyError
	}
	if !keyFound {
		return strategy.incomplete(storedPrivateKeyMissingReasonConstant)
	}

	appCredentials := AppCredentials{
		AppID:          record.AppID,
		InstallationID: record.InstallationID,
		PrivateKeyPEM:  privateKeyPEM,
		Identity: Identity{
			Human:      record.Human,
			Agent:      record.Agent,
			Repository: record.Repository,
		},
	}
	if !appCredentials.Complete() {
		return strategy.incomplete(storedRecordPartialReasonConstant)
	}
	return appCredentials, true, nil
}

func (strategy *StoredStrategy) incomplete(reason string) (AppCredentials, bool, error) {
	strategy.logger.Debug(storedRecordIncompleteMessageConstant,
		zap.String(logFieldReasonConstant, reason),
		zap.String(logFieldPathConstant, strategy.fileStore.Path()),
	)
	return AppCredentials{}, false, nil
}

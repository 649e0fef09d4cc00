package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	credentialsDirectoryNameConstant = "ghbot"
	credentialsFileNameConstant      = "credentials.json"
	credentialsDirectoryPermissions  = fs.FileMode(0o700)
	credentialsFilePermissions       = fs.FileMode(0o600)
	temporaryFilePatternConstant     = ".credentials-*.json"
	fileStoreErrorTemplateConstant   = "credentials file %s: %s: %w"
	fileOperationReadConstant        = "read"
	fileOperationDecodeConstant      = "decode"
	fileOperationWriteConstant       = "write"
	fileOperationDeleteConstant      = "delete"
	fileOperationLocateConstant      = "locate"
)

// StoredRecord is the on-disk JSON shape of the non-secret credential fields.
type StoredRecord struct {
	AppID          int64  `json:"appId"`
	InstallationID int64  `json:"installationId,omitempty"`
	Human          string `json:"human,omitempty"`
	Agent          string `json:"agent,omitempty"`
	Repository     string `json:"repo,omitempty"`
}

// FileStore persists StoredRecord values in a user-private JSON file.
type FileStore struct {
	filePath string
}

// NewFileStore creates a store writing to filePath.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// DefaultFilePath returns the credentials file path under the user configuration directory.
func DefaultFilePath() (string, error) {
	configurationDirectory, directoryError := os.UserConfigDir()
	if directoryError != nil {
		return "", fmt.Errorf(fileStoreErrorTemplateConstant, credentialsFileNameConstant, fileOperationLocateConstant, directoryError)
	}
	return filepath.Join(configurationDirectory, credentialsDirectoryNameConstant, credentialsFileNameConstant), nil
}

// Path reports the file location.
func (store *FileStore) Path() string {
	return store.filePath
}

// Load reads the record. A missing file yields false without error.
func (store *FileStore) Load() (StoredRecord, bool, error) {
	contents, readError := os.ReadFile(store.filePath)
	if readError != nil {
		if errors.Is(readError, fs.ErrNotExist) {
			return StoredRecord{}, false, nil
		}
		return StoredRecord{}, false, fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationReadConstant, readError)
	}

	var record StoredRecord
	if decodeError := json.Unmarshal(contents, &record); decodeError != nil {
		return StoredRecord{}, false, fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationDecodeConstant, decodeError)
	}
	return record, true, nil
}

// Save writes the record atomically with owner-only permissions.
func (store *FileStore) Save(record StoredRecord) error {
	directoryPath := filepath.Dir(store.filePath)
	if mkdirError := os.MkdirAll(directoryPath, credentialsDirectoryPermissions); mkdirError != nil {
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, mkdirError)
	}

	encodedRecord, encodeError := json.MarshalIndent(record, "", "  ")
	if encodeError != nil {
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, encodeError)
	}

	temporaryFile, createError := os.CreateTemp(directoryPath, temporaryFilePatternConstant)
	if createError != nil {
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, createError)
	}
	temporaryPath := temporaryFile.Name()
	defer os.Remove(temporaryPath)

	if chmodError := temporaryFile.Chmod(credentialsFilePermissions); chmodError != nil {
		temporaryFile.Close()
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, chmodError)
	}
	if _, writeError := temporaryFile.Write(append(encodedRecord, '\n')); writeError != nil {
		temporaryFile.Close()
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, writeError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, closeError)
	}
	if renameError := os.Rename(temporaryPath, store.filePath); renameError != nil {
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationWriteConstant, renameError)
	}
	return nil
}

// Delete removes the file. A missing file is not an error.
func (store *FileStore) Delete() error {
	removeError := os.Remove(store.filePath)
	if removeError != nil && !errors.Is(removeError, fs.ErrNotExist) {
		return fmt.Errorf(fileStoreErrorTemplateConstant, store.filePath, fileOperationDeleteConstant, removeError)
	}
	return nil
}

package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// Keychain entry coordinates for the App private key.
const (
	KeychainServiceName = "ghbot"
	KeychainAccountName = "github-app-private-key"
)

const (
	keychainErrorTemplateConstant = "keychain %s: %w"
	keychainOperationStore        = "store"
	keychainOperationLoad         = "load"
	keychainOperationDecode       = "decode"
	keychainOperationDelete       = "delete"
)

// SecretBackend abstracts the operating system secret store.
type SecretBackend interface {
	Get(service string, account string) (string, error)
	Set(service string, account string, secret string) error
	Delete(service string, account string) error
}

type systemKeyring struct{}

func (systemKeyring) Get(service string, account string) (string, error) {
	return keyring.Get(service, account)
}

func (systemKeyring) Set(service string, account string, secret string) error {
	return keyring.Set(service, account, secret)
}

func (systemKeyring) Delete(service string, account string) error {
	return keyring.Delete(service, account)
}

// Keychain stores the private key base64-encoded under a fixed service and account.
type Keychain struct {
	backend SecretBackend
}

// NewKeychain wraps backend; nil selects the operating system keyring.
func NewKeychain(backend SecretBackend) *Keychain {
	if backend == nil {
		backend = systemKeyring{}
	}
	return &Keychain{backend: backend}
}

// Store saves the PEM bytes.
func (keychain *Keychain) Store(privateKeyPEM []byte) error {
	encodedKey := base64.StdEncoding.EncodeToString(privateKeyPEM)
	if storeError := keychain.backend.Set(KeychainServiceName, KeychainAccountName, encodedKey); storeError != nil {
		return fmt.Errorf(keychainErrorTemplateConstant, keychainOperationStore, storeError)
	}
	return nil
}

// Load returns the stored PEM bytes exactly as stored. A missing entry yields false without error.
func (keychain *Keychain) Load() ([]byte, bool, error) {
	encodedKey, loadError := keychain.backend.Get(KeychainServiceName, KeychainAccountName)
	if loadError != nil {
		if errors.Is(loadError, keyring.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf(keychainErrorTemplateConstant, keychainOperationLoad, loadError)
	}
	privateKeyPEM, decodeError := base64.StdEncoding.DecodeString(encodedKey)
	if decodeError != nil {
		return nil, false, fmt.Errorf(keychainErrorTemplateConstant, keychainOperationDecode, decodeError)
	}
	return privateKeyPEM, true, nil
}

// Delete removes the entry. Deleting an absent entry succeeds.
func (keychain *Keychain) Delete() error {
	deleteError := keychain.backend.Delete(KeychainServiceName, KeychainAccountName)
	if deleteError != nil && !errors.Is(deleteError, keyring.ErrNotFound) {
		return fmt.Errorf(keychainErrorTemplateConstant, keychainOperationDelete, deleteError)
	}
	return nil
}

package githubapp

import (
	"errors"
	"fmt"
	"strings"
)

const (
	authExchangeErrorTemplateConstant = "github app %s failed with status %d: %s"
	authExchangeCauseTemplateConstant = "github app %s failed: %v"
	exchangeOperationTokenConstant    = "installation token exchange"
	exchangeOperationLookupConstant   = "installation lookup"
	exchangeOperationVerifyConstant   = "installation verification"
	responseBodyUnavailableConstant   = "<empty response body>"
)

// ErrInvalidPrivateKey indicates the configured PEM could not be parsed as an RSA key.
var ErrInvalidPrivateKey = errors.New("github app private key is not a valid RSA PEM")

// AuthExchangeError reports a failed call to the GitHub App endpoints. StatusCode is zero
// when the request never produced a response.
type AuthExchangeError struct {
	Operation  string
	StatusCode int
	Body       string
	Cause      error
}

// Error describes the failure including the response status and body.
func (exchangeError AuthExchangeError) Error() string {
	if exchangeError.StatusCode == 0 {
		return fmt.Sprintf(authExchangeCauseTemplateConstant, exchangeError.Operation, exchangeError.Cause)
	}
	body := strings.TrimSpace(exchangeError.Body)
	if len(body) == 0 {
		body = responseBodyUnavailableConstant
	}
	return fmt.Sprintf(authExchangeErrorTemplateConstant, exchangeError.Operation, exchangeError.StatusCode, body)
}

// Unwrap exposes the transport cause.
func (exchangeError AuthExchangeError) Unwrap() error {
	return exchangeError.Cause
}

package githubapp

import (
	"crypto/rsa"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	assertionBackdate = 60 * time.Second
	assertionLifetime = 600 * time.Second
)

// ParsePrivateKey decodes an RSA private key in PKCS#1 or PKCS#8 PEM form.
func ParsePrivateKey(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	privateKey, parseError := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if parseError != nil {
		return nil, ErrInvalidPrivateKey
	}
	return privateKey, nil
}

// SignAssertion produces the RS256 App assertion: issuer is the App id, issued-at is backdated
// one minute for clock skew and expiry is ten minutes after now.
func SignAssertion(appIdentifier int64, privateKey *rsa.PrivateKey, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(appIdentifier, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
}

// Package auth provides the ghbot auth command group: setup, status, token, and clear.
package auth

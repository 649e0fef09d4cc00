// Package dispatch runs gh commands under the GitHub App bot identity, refreshing the
// installation token once when gh reports an authentication failure.
package dispatch

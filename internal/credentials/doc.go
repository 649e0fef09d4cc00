// Package credentials resolves GitHub App credentials from the environment or from the
// user's stored configuration file and operating system keychain.
package credentials

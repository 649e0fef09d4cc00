// Package githubapp signs GitHub App assertions and exchanges them for cached installation tokens.
package githubapp

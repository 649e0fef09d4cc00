// Package setup walks a user through storing GitHub App credentials and removes them again.
package setup

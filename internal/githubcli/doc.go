// Package githubcli turns typed issue, pull request, and file operations into gh
// invocations and passes gh's JSON output through unmodelled.
package githubcli

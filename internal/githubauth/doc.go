// Package githubauth inspects the ambient authentication gh uses when ghbot runs without a bot identity.
package githubauth

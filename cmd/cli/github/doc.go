// Package github provides the issue, pr, and file command groups that run gh as the bot identity.
package github

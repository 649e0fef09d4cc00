// Package tools exposes GitHub operations as named tools with JSON schemas and
// structured results for agent hosts.
package tools

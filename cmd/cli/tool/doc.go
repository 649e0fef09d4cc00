// Package tool provides the ghbot tool command group for agent hosts that call tools by name.
package tool

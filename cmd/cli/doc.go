// Package cli constructs the ghbot command-line interface. It wires the Cobra
// command hierarchy, the Viper-backed configuration loader, and zap logging,
// then assembles the credential resolver, token issuer, gh dispatcher, tool
// registry, and skills catalog that the subcommands run against.
package cli

// Package utils exposes reusable helpers consumed by multiple commands.
//
// It houses ConfigurationLoader (Viper with embedded defaults, files, and
// GHBOT_ environment overrides), LoggerFactory (zap), home directory expansion,
// and WriteJSON for command results on standard output.
package utils

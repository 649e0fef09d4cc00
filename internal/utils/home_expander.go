package utils

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	tildeSymbolConstant             = "~"
	tildeForwardSlashPrefixConstant = "~/"
)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// ExpandHomeDirectory resolves a leading "~" or "~/" in candidatePath. Paths are returned unchanged
// when they carry no tilde prefix or the home directory cannot be resolved.
func ExpandHomeDirectory(candidatePath string, homeDirectoryProvider HomeDirectoryProvider) string {
	trimmedPath := strings.TrimSpace(candidatePath)
	if !strings.HasPrefix(trimmedPath, tildeSymbolConstant) {
		return trimmedPath
	}
	if trimmedPath != tildeSymbolConstant && !strings.HasPrefix(trimmedPath, tildeForwardSlashPrefixConstant) {
		return trimmedPath
	}

	if homeDirectoryProvider == nil {
		homeDirectoryProvider = os.UserHomeDir
	}
	homeDirectory, homeDirectoryError := homeDirectoryProvider()
	if homeDirectoryError != nil || len(homeDirectory) == 0 {
		return trimmedPath
	}

	if trimmedPath == tildeSymbolConstant {
		return homeDirectory
	}
	return filepath.Join(homeDirectory, strings.TrimPrefix(trimmedPath, tildeForwardSlashPrefixConstant))
}

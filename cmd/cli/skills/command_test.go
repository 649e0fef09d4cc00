package skills_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	skillscmd "github.com/temirov/ghbot/cmd/cli/skills"
	"github.com/temirov/ghbot/internal/skills"
)

func runSkills(testInstance *testing.T, arguments ...string) (string, error) {
	testInstance.Helper()
	builtin := fstest.MapFS{
		"code-review/SKILL.md": &fstest.MapFile{Data: []byte("---\ndescription: Review code\nmodel: claude-sonnet\n---\n# Review\n")},
		"triage/SKILL.md":      &fstest.MapFile{Data: []byte("---\ndescription: Triage issues\n---\n# Triage\n")},
	}
	catalog, loadError := skills.Load(zap.NewNop(), builtin, nil)
	require.NoError(testInstance, loadError)

	builder := skillscmd.CommandBuilder{
		LoggerProvider:       func() *zap.Logger { return zap.NewNop() },
		CatalogProvider:      func() (skillscmd.Catalog, error) { return catalog, nil },
		DefaultModelProvider: func() string { return "default-model" },
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&bytes.Buffer{})
	command.SetArgs(arguments)
	executionError := command.Execute()
	return output.String(), executionError
}

func TestSkillsList(testInstance *testing.T) {
	output, executionError := runSkills(testInstance, "list")
	require.NoError(testInstance, executionError)

	var summaries []skillscmd.Summary
	require.NoError(testInstance, json.Unmarshal([]byte(output), &summaries))
	require.Len(testInstance, summaries, 2)
	require.Equal(testInstance, "code-review", summaries[0].Name)
	require.Equal(testInstance, "claude-sonnet", summaries[0].Model)
	require.Equal(testInstance, "triage", summaries[1].Name)
	require.Equal(testInstance, "default-model", summaries[1].Model)
}

func TestSkillsShow(testInstance *testing.T) {
	output, executionError := runSkills(testInstance, "show", "triage")
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "# Triage\n", output)

	_, missingError := runSkills(testInstance, "show", "unknown")
	require.ErrorIs(testInstance, missingError, skills.ErrSkillNotFound)
}

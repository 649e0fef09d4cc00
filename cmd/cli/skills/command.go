package skills

import (
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/ghbot/internal/skills"
	"github.com/temirov/ghbot/internal/utils"
)

const (
	skillsCommandUseConstant              = "skills"
	skillsCommandShortDescriptionConstant = "Browse the bundled agent skill documents"
	skillsCommandLongDescriptionConstant  = "skills lists and prints markdown skill documents. Documents in configured directories override the bundled ones by name."
	listCommandUseConstant                = "list"
	listCommandShortDescriptionConstant   = "List skills with their descriptions and models"
	showCommandUseConstant                = "show <name>"
	showCommandShortDescriptionConstant   = "Print a skill's markdown body"
	catalogNotConfiguredMessageConstant   = "skills catalog is not configured"
	skillsListedMessageConstant           = "skills listed"
	logFieldCountConstant                 = "count"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// Catalog is the read side of skills.Catalog.
type Catalog interface {
	Names() []string
	Get(name string) (skills.Skill, error)
	ModelFor(name string, fallback string) string
}

// CatalogProvider loads the catalog once configuration is available.
type CatalogProvider func() (Catalog, error)

// DefaultModelProvider returns the model used for skills that declare none.
type DefaultModelProvider func() string

// Summary is one entry printed by skills list.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model,omitempty"`
	Origin      string `json:"origin"`
}

// CommandBuilder assembles the skills command hierarchy.
type CommandBuilder struct {
	LoggerProvider       LoggerProvider
	CatalogProvider      CatalogProvider
	DefaultModelProvider DefaultModelProvider
}

// Build constructs the skills command with list and show subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	skillsCommand := &cobra.Command{
		Use:   skillsCommandUseConstant,
		Short: skillsCommandShortDescriptionConstant,
		Long:  skillsCommandLongDescriptionConstant,
	}

	listCommand := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listCommandShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.runList,
	}

	showCommand := &cobra.Command{
		Use:   showCommandUseConstant,
		Short: showCommandShortDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE:  builder.runShow,
	}

	skillsCommand.AddCommand(listCommand, showCommand)
	return skillsCommand, nil
}

func (builder *CommandBuilder) runList(command *cobra.Command, arguments []string) error {
	catalog, catalogError := builder.resolveCatalog()
	if catalogError != nil {
		return catalogError
	}

	defaultModel := ""
	if builder.DefaultModelProvider != nil {
		defaultModel = builder.DefaultModelProvider()
	}

	summaries := make([]Summary, 0, len(catalog.Names()))
	for _, name := range catalog.Names() {
		skill, getError := catalog.Get(name)
		if getError != nil {
			return getError
		}
		summaries = append(summaries, Summary{
			Name:        skill.Name,
			Description: skill.Description,
			Model:       catalog.ModelFor(name, defaultModel),
			Origin:      skill.Origin,
		})
	}

	builder.resolveLogger().Debug(skillsListedMessageConstant, zap.Int(logFieldCountConstant, len(summaries)))
	return utils.WriteJSON(command.OutOrStdout(), summaries)
}

func (builder *CommandBuilder) runShow(command *cobra.Command, arguments []string) error {
	catalog, catalogError := builder.resolveCatalog()
	if catalogError != nil {
		return catalogError
	}
	skill, getError := catalog.Get(arguments[0])
	if getError != nil {
		return getError
	}
	_, writeError := io.WriteString(command.OutOrStdout(), skill.Body)
	return writeError
}

func (builder *CommandBuilder) resolveCatalog() (Catalog, error) {
	if builder.CatalogProvider == nil {
		return nil, errors.New(catalogNotConfiguredMessageConstant)
	}
	catalog, catalogError := builder.CatalogProvider()
	if catalogError != nil {
		return nil, catalogError
	}
	if catalog == nil {
		return nil, errors.New(catalogNotConfiguredMessageConstant)
	}
	return catalog, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

package skills

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	embeddedRootConstant         = "catalog"
	skillFileNameConstant        = "SKILL.md"
	embeddedOriginPrefixConstant = "builtin:"
	catalogErrorTemplateConstant = "load skills from %s: %w"
	skippedSkillMessageConstant  = "skipping unreadable skill"
	shadowedSkillMessageConstant = "skill shadowed by earlier directory"
	missingDirectoryMessage      = "skills directory not found"
	logFieldOriginConstant       = "origin"
	logFieldSkillConstant        = "skill"
	logFieldDirectoryConstant    = "directory"
)

//go:embed catalog/*/SKILL.md
var embeddedCatalog embed.FS

// ErrSkillNotFound indicates the catalog holds no skill with the requested name.
var ErrSkillNotFound = errors.New("skill not found")

// Embedded returns the skill documents compiled into the binary.
func Embedded() fs.FS {
	embeddedRoot, subError := fs.Sub(embeddedCatalog, embeddedRootConstant)
	if subError != nil {
		return embeddedCatalog
	}
	return embeddedRoot
}

// Catalog indexes skills by name.
type Catalog struct {
	skills map[string]Skill
}

// Load reads skills from each directory in order and then from builtin. Each skill lives in
// <root>/<name>/SKILL.md; the first skill found for a name wins. Unreadable on-disk documents are
// logged and skipped; a malformed builtin document is an error.
func Load(logger *zap.Logger, builtin fs.FS, directories []string) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := &Catalog{skills: make(map[string]Skill)}

	for _, directory := range directories {
		trimmedDirectory := strings.TrimSpace(directory)
		if len(trimmedDirectory) == 0 {
			continue
		}
		if _, statError := os.Stat(trimmedDirectory); statError != nil {
			logger.Debug(missingDirectoryMessage, zap.String(logFieldDirectoryConstant, trimmedDirectory))
			continue
		}
		if loadError := catalog.loadRoot(logger, os.DirFS(trimmedDirectory), trimmedDirectory, false); loadError != nil {
			return nil, fmt.Errorf(catalogErrorTemplateConstant, trimmedDirectory, loadError)
		}
	}

	if builtin != nil {
		if loadError := catalog.loadRoot(logger, builtin, embeddedOriginPrefixConstant, true); loadError != nil {
			return nil, fmt.Errorf(catalogErrorTemplateConstant, embeddedOriginPrefixConstant, loadError)
		}
	}
	return catalog, nil
}

func (catalog *Catalog) loadRoot(logger *zap.Logger, root fs.FS, originPrefix string, strict bool) error {
	entries, readError := fs.ReadDir(root, ".")
	if readError != nil {
		return readError
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		documentPath := path.Join(entry.Name(), skillFileNameConstant)
		origin := path.Join(originPrefix, documentPath)
		if strings.HasSuffix(originPrefix, ":") {
			origin = originPrefix + documentPath
		}

		content, fileError := fs.ReadFile(root, documentPath)
		if fileError != nil {
			if errors.Is(fileError, fs.ErrNotExist) {
				continue
			}
			if strict {
				return fileError
			}
			logger.Warn(skippedSkillMessageConstant, zap.String(logFieldOriginConstant, origin), zap.Error(fileError))
			continue
		}

		skill, parseError := ParseDocument(origin, entry.Name(), content)
		if parseError != nil {
			if strict {
				return parseError
			}
			logger.Warn(skippedSkillMessageConstant, zap.String(logFieldOriginConstant, origin), zap.Error(parseError))
			continue
		}

		if existing, exists := catalog.skills[skill.Name]; exists {
			logger.Debug(shadowedSkillMessageConstant, zap.String(logFieldSkillConstant, skill.Name), zap.String(logFieldOriginConstant, existing.Origin))
			continue
		}
		catalog.skills[skill.Name] = skill
	}
	return nil
}

// Names lists skill names in sorted order.
func (catalog *Catalog) Names() []string {
	names := make([]string, 0, len(catalog.skills))
	for name := range catalog.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named skill.
func (catalog *Catalog) Get(name string) (Skill, error) {
	skill, exists := catalog.skills[strings.TrimSpace(name)]
	if !exists {
		return Skill{}, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	return skill, nil
}

// ModelFor returns the model the skill asks for, or fallback when the skill is unknown or names none.
func (catalog *Catalog) ModelFor(name string, fallback string) string {
	skill, exists := catalog.skills[strings.TrimSpace(name)]
	if !exists || len(skill.Model) == 0 {
		return fallback
	}
	return skill.Model
}

package skills

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	frontmatterDelimiterConstant      = "---"
	carriageReturnConstant            = "\r"
	lineSeparatorConstant             = "\n"
	maximumNameLengthConstant         = 64
	maximumDescriptionLengthConstant  = 1024
	documentErrorTemplateConstant     = "skill %s: %s"
	documentCauseErrorTemplate        = "skill %s: %s: %v"
	unterminatedFrontmatterMessage    = "frontmatter is not terminated"
	frontmatterDecodingMessage        = "frontmatter invalid"
	invalidNameMessageTemplate        = "name %q must be lowercase words separated by hyphens"
	descriptionTooLongMessageConstant = "description exceeds 1024 characters"
)

var skillNamePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Frontmatter is the complete set of keys accepted in a skill header.
type Frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Model       string `yaml:"model"`
}

// Skill is a parsed markdown skill document.
type Skill struct {
	Name        string
	Description string
	Model       string
	Body        string
	Origin      string
}

// DocumentError reports a skill document that could not be parsed.
type DocumentError struct {
	Origin  string
	Message string
	Cause   error
}

// Error describes the parsing problem.
func (documentError DocumentError) Error() string {
	if documentError.Cause == nil {
		return fmt.Sprintf(documentErrorTemplateConstant, documentError.Origin, documentError.Message)
	}
	return fmt.Sprintf(documentCauseErrorTemplate, documentError.Origin, documentError.Message, documentError.Cause)
}

// Unwrap exposes the YAML error.
func (documentError DocumentError) Unwrap() error {
	return documentError.Cause
}

// ParseDocument splits an optional leading frontmatter block from the body. Only the block that opens on
// the first line is parsed; later "---" lines belong to the body. Unknown keys are rejected. fallbackName
// is used when the header does not name the skill.
func ParseDocument(origin string, fallbackName string, content []byte) (Skill, error) {
	header, body, hasHeader, splitError := splitFrontmatter(content)
	if splitError != nil {
		return Skill{}, DocumentError{Origin: origin, Message: splitError.Error()}
	}

	var frontmatter Frontmatter
	if hasHeader && len(bytes.TrimSpace(header)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(header))
		decoder.KnownFields(true)
		if decodeError := decoder.Decode(&frontmatter); decodeError != nil {
			return Skill{}, DocumentError{Origin: origin, Message: frontmatterDecodingMessage, Cause: decodeError}
		}
	}

	skill := Skill{
		Name:        strings.TrimSpace(frontmatter.Name),
		Description: strings.TrimSpace(frontmatter.Description),
		Model:       strings.TrimSpace(frontmatter.Model),
		Body:        body,
		Origin:      origin,
	}
	if len(skill.Name) == 0 {
		skill.Name = strings.TrimSpace(fallbackName)
	}
	if len(skill.Name) > maximumNameLengthConstant || !skillNamePattern.MatchString(skill.Name) {
		return Skill{}, DocumentError{Origin: origin, Message: fmt.Sprintf(invalidNameMessageTemplate, skill.Name)}
	}
	if len(skill.Description) > maximumDescriptionLengthConstant {
		return Skill{}, DocumentError{Origin: origin, Message: descriptionTooLongMessageConstant}
	}
	return skill, nil
}

func splitFrontmatter(content []byte) ([]byte, string, bool, error) {
	lines := strings.Split(string(content), lineSeparatorConstant)
	if strings.TrimSuffix(lines[0], carriageReturnConstant) != frontmatterDelimiterConstant {
		return nil, string(content), false, nil
	}

	for index := 1; index < len(lines); index++ {
		if strings.TrimSuffix(lines[index], carriageReturnConstant) == frontmatterDelimiterConstant {
			header := strings.Join(lines[1:index], lineSeparatorConstant)
			body := strings.Join(lines[index+1:], lineSeparatorConstant)
			return []byte(header), body, true, nil
		}
	}
	return nil, "", false, errors.New(unterminatedFrontmatterMessage)
}

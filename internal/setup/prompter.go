package setup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	promptWithDefaultTemplateConstant = "%s [%s]: "
	promptTemplateConstant            = "%s: "
)

// IOPrompter reads answers line by line from an io.Reader.
type IOPrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOPrompter constructs a prompter from the provided reader and writer.
func NewIOPrompter(input io.Reader, output io.Writer) *IOPrompter {
	return &IOPrompter{reader: bufio.NewReader(input), writer: output}
}

// Ask writes the label and returns the trimmed answer, or defaultValue when the answer is blank.
func (prompter *IOPrompter) Ask(label string, defaultValue string) (string, error) {
	if prompter.writer != nil {
		prompt := fmt.Sprintf(promptTemplateConstant, label)
		if len(defaultValue) > 0 {
			prompt = fmt.Sprintf(promptWithDefaultTemplateConstant, label, defaultValue)
		}
		if _, writeError := io.WriteString(prompter.writer, prompt); writeError != nil {
			return "", writeError
		}
	}

	response, readError := prompter.reader.ReadString('\n')
	if readError != nil && !errors.Is(readError, io.EOF) {
		return "", readError
	}

	trimmedResponse := strings.TrimSpace(response)
	if len(trimmedResponse) == 0 {
		return defaultValue, nil
	}
	return trimmedResponse, nil
}

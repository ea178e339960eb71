package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
)

var (
	//go:embed system.txt
	baseSystemPrompt string
	//go:embed design.txt
	designPrompt string
	//go:embed preamble.txt
	artifactPreamble string
	//go:embed question.txt
	templateQuestion string
	//go:embed templates/react.txt
	reactBase string
	//go:embed templates/node.txt
	nodeBase string
)

var (
	metadataMu sync.RWMutex
	metadata   string
)

// Template is the starting point chosen for a project. Prompts are sent to the
// model ahead of the user's request; UIPrompts hold the base artifact whose
// steps seed the project.
type Template struct {
	Name      string
	Prompts   []string
	UIPrompts []string
}

// Base returns the built-in system prompt.
func Base() string {
	return strings.TrimSpace(baseSystemPrompt)
}

// Combine joins the built-in prompt with an optional user-provided prompt.
func Combine(user string) string {
	base := Base()
	trimmed := strings.TrimSpace(user)
	var sections []string
	sections = append(sections, base)

	if meta := getMetadata(); meta != "" {
		sections = append(sections, "## Environment Context\n"+meta)
	}

	if trimmed != "" {
		sections = append(sections, trimmed)
	}

	return strings.Join(sections, "\n\n")
}

// TemplateQuestion is the system instruction that asks the model to pick a template.
func TemplateQuestion() string {
	return strings.TrimSpace(templateQuestion)
}

// ForName returns the template for a classifier answer. Surrounding space,
// case and a trailing period are tolerated.
func ForName(answer string) (Template, bool) {
	name := strings.ToLower(strings.TrimSpace(answer))
	name = strings.Trim(name, ".'\"`")
	switch name {
	case "react":
		base := strings.TrimSpace(reactBase)
		return Template{
			Name:      "react",
			Prompts:   []string{strings.TrimSpace(designPrompt), preamble(base)},
			UIPrompts: []string{base},
		}, true
	case "node":
		base := strings.TrimSpace(nodeBase)
		return Template{
			Name:      "node",
			Prompts:   []string{preamble(base)},
			UIPrompts: []string{base},
		}, true
	}
	return Template{}, false
}

func preamble(artifact string) string {
	return fmt.Sprintf(strings.TrimSpace(artifactPreamble), artifact)
}

// SetMetadata defines the environment metadata appended to the system prompt.
func SetMetadata(info string) {
	metadataMu.Lock()
	defer metadataMu.Unlock()
	metadata = strings.TrimSpace(info)
}

func getMetadata() string {
	metadataMu.RLock()
	defer metadataMu.RUnlock()
	return metadata
}

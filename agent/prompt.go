package agent

import (
	"fmt"
	"strings"

	_ "embed"

	"github.com/Sami9889/grook/tools"
)

//go:embed prompts/system.tmpl
var systemPromptSource string

//go:embed prompts/protocol.tmpl
var protocolPromptSource string

// PromptSpec is the assembled system prompt: the persona plus ordered titled
// blocks (tool listing, response protocol, any extras).
type PromptSpec struct {
	Persona string
	Blocks  []PromptBlock
}

type PromptBlock struct {
	Title   string
	Content string
}

func (s PromptSpec) Render() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(s.Persona))
	for _, block := range s.Blocks {
		title := strings.TrimSpace(block.Title)
		content := strings.TrimSpace(block.Content)
		if title == "" || content == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n\n## %s\n\n%s", title, content)
	}
	return sb.String()
}

func buildPromptSpec(botID, creatorID string, registry *tools.Registry) PromptSpec {
	creator := ""
	if creatorID != "" {
		creator = fmt.Sprintf(" You were created by the user with ID %s.", creatorID)
	}
	persona := strings.TrimSpace(systemPromptSource)
	persona = strings.ReplaceAll(persona, "{BOT_ID}", botID)
	persona = strings.ReplaceAll(persona, "{CREATOR}", creator)

	spec := PromptSpec{Persona: persona}
	spec.Blocks = appendPromptBlock(spec.Blocks, PromptBlock{
		Title:   "Tools",
		Content: renderToolList(registry),
	})
	spec.Blocks = appendPromptBlock(spec.Blocks, PromptBlock{
		Title:   "Response Protocol",
		Content: strings.TrimSpace(protocolPromptSource),
	})
	return spec
}

func renderToolList(registry *tools.Registry) string {
	if registry == nil {
		return ""
	}
	var sb strings.Builder
	for _, t := range registry.All() {
		fmt.Fprintf(&sb, "### %s\n\n%s\n\nParameters schema:\n%s\n\n",
			t.Name(), strings.TrimSpace(t.Description()), strings.TrimSpace(t.ParameterSchema()))
	}
	return strings.TrimSpace(sb.String())
}

func appendPromptBlock(blocks []PromptBlock, block PromptBlock) []PromptBlock {
	title := strings.TrimSpace(block.Title)
	content := strings.TrimSpace(block.Content)
	if title == "" || content == "" {
		return blocks
	}
	for _, existing := range blocks {
		if strings.EqualFold(strings.TrimSpace(existing.Title), title) &&
			strings.TrimSpace(existing.Content) == content {
			return blocks
		}
	}
	return append(blocks, PromptBlock{Title: title, Content: content})
}

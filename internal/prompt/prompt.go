// Package prompt assembles the system prompt sent with every completion
// request. Building is pure: no network calls happen here.
package prompt

import (
	_ "embed"
	"strings"

	"github.com/openfactory/huddle/internal/toollist"
)

// Sentinel is the literal token the model is instructed to emit when a
// thread message needs no reply. Callers check the completion text for
// this substring before posting anything.
const Sentinel = "NO_RESPONSE_NEEDED"

const persona = "You are a helpful assistant in a Slack workspace. " +
	"Be concise but friendly in your responses. Answer using the fewest " +
	"words possible without losing meaning. Avoid filler, repetition, and " +
	"unnecessary detail."

const sentinelInstruction = "If a message is just a general comment about " +
	"you, isn't a question, or doesn't require a response (like \"woah, it " +
	"did it!\"), simply respond with \"" + Sentinel + "\". Only respond " +
	"with actual content when you can add value to the conversation."

//go:embed orgchart.md
var orgChart string

// BuildInput carries everything a single prompt build depends on.
type BuildInput struct {
	InThread         bool
	ParticipantNames []string
	Tools            []toollist.Tool
	RetrievedContext string
}

type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// Build assembles the system prompt: persona, participant
// personalization, the thread sentinel instruction, the org directory
// reference document, and optional tool and retrieved-context blocks.
func (b *Builder) Build(in BuildInput) string {
	sections := []string{persona}

	if clause := personalization(in.ParticipantNames); clause != "" {
		sections = append(sections, clause)
	}
	if in.InThread {
		sections = append(sections, sentinelInstruction)
	}
	sections = append(sections, "Here is the org chart of the company in which you are operating: "+strings.TrimSpace(orgChart))

	if block := toolBlock(in.Tools); block != "" {
		sections = append(sections, block)
	}
	if ctx := strings.TrimSpace(in.RetrievedContext); ctx != "" {
		sections = append(sections, "Here is some relevant context for your response: "+ctx)
	}

	return strings.Join(sections, "\n\n")
}

// personalization names 1, 2, or 3+ unique participants:
// "A.", "A and B.", "A, B, and C.".
func personalization(names []string) string {
	unique := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}

	switch len(unique) {
	case 0:
		return ""
	case 1:
		return "You are talking to " + unique[0] + "."
	case 2:
		return "You are talking to " + unique[0] + " and " + unique[1] + "."
	default:
		last := unique[len(unique)-1]
		return "You are talking to " + strings.Join(unique[:len(unique)-1], ", ") + ", and " + last + "."
	}
}

func toolBlock(tools []toollist.Tool) string {
	if len(tools) == 0 {
		return ""
	}
	lines := make([]string, 0, len(tools)+1)
	lines = append(lines, "The following external tools are available to reference:")
	for _, tool := range tools {
		name := strings.TrimSpace(tool.Name)
		path := strings.TrimSpace(tool.WebhookPath)
		if name == "" || path == "" {
			continue
		}
		lines = append(lines, "- "+name+" (webhook: "+path+")")
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

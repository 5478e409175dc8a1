package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/source"
)

// StageInput is what a stage prompt is built from.
type StageInput struct {
	Role     string
	Goal     string
	Tier     model.Tier
	Previous string
	Payload  []source.File
	Cached   []string
	// Aliases maps a path not sent to the already sent path with the same content.
	Aliases map[string]string
}

// PromptBuilder turns a stage input into system and user prompts.
type PromptBuilder interface {
	Build(in StageInput) (system, prompt string)
}

// PromptFunc adapts a function to PromptBuilder.
type PromptFunc func(in StageInput) (string, string)

func (f PromptFunc) Build(in StageInput) (string, string) { return f(in) }

var roleSystem = map[string]string{
	model.RoleArchitect: "You are a senior software architect. Produce an implementation plan.",
	model.RoleCoder:     "You are a senior developer. Implement the plan as a unified diff.",
	model.RoleTester:    "You are a QA engineer. Review the change and report PASS or the issues found.",
	model.RoleDocWriter: "You are a technical writer. Write the change description.",
}

// DefaultPrompts sends the goal, the previous stage's output and the files
// that still need transmitting. Cached files are named, not resent.
var DefaultPrompts PromptBuilder = PromptFunc(func(in StageInput) (string, string) {
	system := roleSystem[in.Role]
	if system == "" {
		system = fmt.Sprintf("You are the %s stage.", in.Role)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL:\n%s\n", in.Goal)
	if in.Previous != "" {
		fmt.Fprintf(&b, "\nPREVIOUS STAGE OUTPUT:\n%s\n", in.Previous)
	}
	if len(in.Cached) > 0 {
		fmt.Fprintf(&b, "\nUNCHANGED FILES (already sent): %s\n", strings.Join(in.Cached, ", "))
	}
	if len(in.Aliases) > 0 {
		b.WriteString("\nSAME CONTENT AS AN ALREADY SENT FILE:\n")
		for _, p := range slices.Sorted(maps.Keys(in.Aliases)) {
			fmt.Fprintf(&b, "%s = %s\n", p, in.Aliases[p])
		}
	}
	for _, f := range in.Payload {
		fmt.Fprintf(&b, "\n=== %s ===\n%s\n", f.Path, f.Content)
	}
	return system, b.String()
})

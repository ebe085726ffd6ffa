package assembler

import (
	"context"
	"fmt"
	"strings"
)

// EnrichPrompt prepends relevant context to a task prompt. When c is nil
// a context is assembled for the prompt first. A context with no entries
// leaves the prompt untouched.
func (a *Assembler) EnrichPrompt(ctx context.Context, prompt string, c *Context) string {
	if c == nil {
		assembled := a.ProvideContext(ctx, prompt, 0)
		c = &assembled
	}
	if len(c.Entries) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("## Relevant Context\n\n")
	if c.Summary != "" {
		sb.WriteString(c.Summary)
		sb.WriteString("\n\n")
	}
	for i, entry := range c.Entries {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&sb, "[%s] (%s): %s\n\n", entry.Type, entry.Metadata.Source, truncate(entry.Content, 500))
	}
	sb.WriteString("## Task\n\n")
	sb.WriteString(prompt)
	return sb.String()
}

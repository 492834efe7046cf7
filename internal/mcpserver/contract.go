package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/bones/internal/models"
)

// ClassificationTable renders every classification as a Markdown table for
// LLM consumers, followed by the expiry rule.
func ClassificationTable() string {
	var b strings.Builder
	b.WriteString("# Bones Classifications\n\n")
	b.WriteString("| name | label | meaning |\n")
	b.WriteString("|------|-------|---------|\n")
	for _, c := range models.Classifications {
		p := c.Presentation()
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n", c, p.Label, p.Detail)
	}
	b.WriteString("\n## Expiry\n\n")
	b.WriteString("A reading is valid for the calendar day on which it was observed, in the\n")
	b.WriteString("service's reference time zone. After local midnight it is reported as\n")
	fmt.Fprintf(&b, "`stale` with the label %q, whatever it held before.\n", models.StalePresentation.Label)
	return b.String()
}

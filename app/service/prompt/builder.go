package prompt

import (
	"strings"

	"voicedesk/app/service/session"
	"voicedesk/app/service/tasks"

	_ "embed"

	"github.com/elliotchance/pie/v2"
)

//go:embed system_prompt.txt
var systemPrompt string

// Build renders the conversation context of state as a few plain sentences.
// Sections with nothing to say are left out entirely; completed tasks are not mentioned.
func Build(state session.State) string {
	sections := make([]string, 0, 3)

	if len(state.Topics) > 0 {
		sections = append(sections,
			plural(len(state.Topics), "Topic discussed so far", "Topics discussed so far")+": "+FormatList(state.Topics)+".")
	}

	if len(state.Documents) > 0 {
		sections = append(sections,
			plural(len(state.Documents), "Document referenced", "Documents referenced")+": "+FormatList(state.Documents)+".")
	}

	open := pie.Filter(state.Tasks, func(t session.Task) bool {
		return t.Status != session.StatusCompleted
	})
	if len(open) > 0 {
		sections = append(sections,
			plural(len(open), "Outstanding task", "Outstanding tasks")+": "+strings.Join(pie.Map(open, tasks.Outstanding), "; ")+".")
	}

	return strings.Join(sections, "\n")
}

// System returns the full system instruction for the reply call: fixed guidance
// followed by the rendered conversation context, when there is any.
func System(state session.State) string {
	base := strings.TrimSpace(systemPrompt)

	rendered := Build(state)
	if rendered == "" {
		return base
	}

	return base + "\n\nConversation context:\n" + rendered
}

// FormatList joins values as "A", "A and B" or "A, B and C".
func FormatList(values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}

	return strings.Join(values[:len(values)-1], ", ") + " and " + values[len(values)-1]
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}

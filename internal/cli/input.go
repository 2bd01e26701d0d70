package cli

import (
	"strings"

	prompt "github.com/c-bata/go-prompt"
)

// readTask asks for a task on the terminal. Previous tasks are offered as completions.
func readTask(previous []string) string {
	// previous is newest first; the up arrow walks history from the end
	hist := make([]string, len(previous))
	for i, task := range previous {
		hist[len(previous)-1-i] = task
	}

	return prompt.Input("Task> ", taskCompleter(previous),
		prompt.OptionTitle("pwtpilot"),
		prompt.OptionPrefixTextColor(prompt.Cyan),
		prompt.OptionMaxSuggestion(8),
		prompt.OptionHistory(hist),
	)
}

// taskCompleter suggests previous tasks containing the text typed so far
func taskCompleter(previous []string) prompt.Completer {
	suggestions := make([]prompt.Suggest, 0, len(previous))
	for _, task := range previous {
		suggestions = append(suggestions, prompt.Suggest{Text: task})
	}

	return func(d prompt.Document) []prompt.Suggest {
		typed := strings.TrimSpace(d.TextBeforeCursor())
		if typed == "" {
			return nil
		}
		return prompt.FilterContains(suggestions, typed, true)
	}
}

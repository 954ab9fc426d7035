package inference

import (
	"regexp"
	"strings"
)

// Prompt hardening. Untrusted intake text is embedded into user messages; any
// line that tries to smuggle role markers or instruction overrides is removed
// before transmission.

var (
	roleLinePattern  = regexp.MustCompile(`(?i)^\s*(SYSTEM|ASSISTANT)\s*:`)
	ignorePattern    = regexp.MustCompile(`(?i)ignore (the )?previous instructions`)
	roleMarkerInText = regexp.MustCompile(`(?i)\b(SYSTEM|ASSISTANT)\s*:`)
)

// HardenUntrustedText strips injection-shaped content from text that will be
// quoted inside a prompt: role-prefixed lines, instruction-override phrases,
// and fenced code blocks that contain role markers.
func HardenUntrustedText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	i := 0
	for i < len(lines) {
		line := lines[i]

		// Fenced block: drop the whole block if it contains role markers.
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			end := i + 1
			for end < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[end]), "```") {
				end++
			}
			block := strings.Join(lines[i:minInt(end+1, len(lines))], "\n")
			if !roleMarkerInText.MatchString(block) {
				out = append(out, lines[i:minInt(end+1, len(lines))]...)
			}
			i = end + 1
			continue
		}

		if roleLinePattern.MatchString(line) || ignorePattern.MatchString(line) {
			i++
			continue
		}
		out = append(out, line)
		i++
	}
	return strings.Join(out, "\n")
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

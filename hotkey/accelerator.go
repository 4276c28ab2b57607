package hotkey

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultAccelerator is used when no accelerator is configured.
const DefaultAccelerator = "CommandOrControl+Alt+Space"

// commandOrControl is the platform-neutral primary modifier.
const commandOrControl = "CommandOrControl"

var titleCaser = cases.Title(language.Und)

// Normalize rewrites an accelerator into canonical form: tokens trimmed,
// every spelling of the primary modifier folded into CommandOrControl,
// single characters upper-cased and other tokens title-cased. An empty
// accelerator yields DefaultAccelerator.
func Normalize(accel string) string {
	var out []string
	for tok := range strings.SplitSeq(accel, "+") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		out = append(out, normalizeToken(tok))
	}
	if len(out) == 0 {
		return DefaultAccelerator
	}
	return strings.Join(out, "+")
}

func normalizeToken(tok string) string {
	switch strings.ToLower(tok) {
	case "ctrl", "control", "cmdorctrl", "ctrlorcmd", "commandorcontrol", "commandorctrl", "cmdorcontrol":
		return commandOrControl
	}
	if len([]rune(tok)) == 1 {
		return strings.ToUpper(tok)
	}
	return titleCaser.String(tok)
}

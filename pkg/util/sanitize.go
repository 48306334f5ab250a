package util

import "strings"

// sanitizeTokens maps each forbidden filesystem character to a readable
// replacement token, applied in order so multi-character tokens never
// collide with a later single-character replacement.
var sanitizeTokens = []struct {
	char  string
	token string
}{
	{" ", "_"},
	{"|", "_pipe_"},
	{">", "_gt_"},
	{"<", "_lt_"},
	{"/", "_slash_"},
	{"\\", "_bslash_"},
	{":", "_colon_"},
	{"*", "_star_"},
	{"?", "_q_"},
	{"\"", "_quote_"},
}

const sanitizedStemMaxLen = 100

// SanitizeCommand derives a filesystem-safe file stem from a device command
// string: each disallowed character becomes a readable token and the result
// is truncated to sanitizedStemMaxLen characters. Deterministic and pure —
// the same command always sanitises to the same stem.
func SanitizeCommand(command string) string {
	s := command
	for _, t := range sanitizeTokens {
		s = strings.ReplaceAll(s, t.char, t.token)
	}
	if len(s) > sanitizedStemMaxLen {
		s = s[:sanitizedStemMaxLen]
	}
	return s
}

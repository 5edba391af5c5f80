// Package shellutil holds the small helpers layered on the privileged shell:
// argument escaping, bind mount and unmount with retries, reboot dispatch,
// and busybox detection.
package shellutil

import "strings"

// EscapeShellArg quotes s so it is passed to sh as exactly one literal word.
// The result is wrapped in single quotes and every embedded ' becomes '\''.
func EscapeShellArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// EscapeShellArgs escapes every element and joins them with single spaces.
func EscapeShellArgs(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = EscapeShellArg(a)
	}
	return strings.Join(quoted, " ")
}

var doubleQuoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)

// EscapeDoubleQuoted escapes s for use inside a double-quoted shell string.
// The caller supplies the surrounding quotes.
func EscapeDoubleQuoted(s string) string {
	return doubleQuoteReplacer.Replace(s)
}

// Package format escapes text for Telegram's MarkdownV2 parse mode.
package format

import "strings"

var v2 = func() *strings.Replacer {
	const specials = "\\_*[]()~`>#+-=|{}.!"
	pairs := make([]string, 0, 2*len(specials))
	for _, r := range specials {
		pairs = append(pairs, string(r), "\\"+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// EscapeV2 escapes every MarkdownV2 special character in text.
func EscapeV2(text string) string {
	return v2.Replace(text)
}

// Bold wraps escaped text in bold markers.
func Bold(text string) string { return "*" + EscapeV2(text) + "*" }

// Italic wraps escaped text in italic markers.
func Italic(text string) string { return "_" + EscapeV2(text) + "_" }

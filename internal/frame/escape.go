package frame

import "strings"

var (
	// Characters Telegram's MarkdownV2 dialect reserves outside code entities.
	markdownEscaper = strings.NewReplacer(
		`\`, `\\`,
		"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
		"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
		"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
	)
	// Inside pre and code entities only the backtick and backslash are special.
	codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")
	htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// EscapeMarkdown escapes s for use as MarkdownV2 text.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// EscapeCode escapes s for use inside a MarkdownV2 pre block.
func EscapeCode(s string) string {
	return codeEscaper.Replace(s)
}

// EscapeHTML escapes s for use as Telegram HTML text.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

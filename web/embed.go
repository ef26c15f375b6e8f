// Package web embeds the operator console page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed console
var consoleFS embed.FS

// ConsoleHandler serves the console page and its assets. Mount it with the
// prefix stripped.
func ConsoleHandler() http.Handler {
	subFS, err := fs.Sub(consoleFS, "console")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return http.FileServer(http.FS(subFS))
}

// Package web embeds the HTML templates and static assets into the binary.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses the layout and every page template. Pages are rendered
// by executing "base".
func Templates() (*template.Template, error) {
	return template.New("").Funcs(functions).ParseFS(templateFS, "templates/*.html")
}

// Static serves the embedded static directory; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// the embed pattern guarantees the directory exists
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

var functions = template.FuncMap{
	// ages lists the selectable ages, inclusive.
	"ages": func(from, to int) []int {
		out := make([]int, 0, to-from+1)
		for age := from; age <= to; age++ {
			out = append(out, age)
		}
		return out
	},
}

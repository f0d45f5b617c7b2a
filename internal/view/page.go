package view

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/widget.html"))

// Page is the data for the widget page.
type Page struct {
	State
	// Imperial reflects the unit toggle.
	Imperial bool
	// City pre-fills the search box with the last searched city.
	City string
	// Title is the document title.
	Title string
}

// RenderPage writes the widget page.
func RenderPage(w io.Writer, p Page) error {
	if p.Title == "" {
		p.Title = "Weather"
	}
	return pageTemplate.Execute(w, p)
}

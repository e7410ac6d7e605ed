package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/2beens/notesapp/internal/notes"
	"github.com/2beens/notesapp/pkg"

	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

var (
	loginTemplate = parsePage("login.html")
	notesTemplate = parsePage("notes.html")
)

func parsePage(page string) *template.Template {
	return template.Must(
		template.New(page).Funcs(templateFuncs).ParseFS(templatesFS, "templates/layout.html", "templates/"+page),
	)
}

type loginPage struct {
	Handle string
	Error  string
}

type notesPage struct {
	DisplayName string
	Notes       []notes.Note
	Draft       notes.Draft
	Error       string
}

// render executes into a buffer first, so a template error never leaves a half written page.
func render(w http.ResponseWriter, tmpl *template.Template, statusCode int, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Errorf("render %s: %s", tmpl.Name(), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.HTML, buf.Bytes(), statusCode)
}

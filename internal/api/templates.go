package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "dashboard", "reviews", "navigation", "admin_data"}

// loadPages parses each page together with the shared layout.
func loadPages() map[string]*template.Template {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		pages[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return pages
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := h.pages[name]
	if !ok {
		respondError(w, http.StatusInternalServerError, "unknown page "+name)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		logrus.WithError(err).WithField("page", name).Error("unable to render page")
		respondError(w, http.StatusInternalServerError, "unable to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

package site

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

var reportPage = template.Must(template.ParseFS(staticFS, "static/report.html.tmpl"))

// FS returns an http.FileSystem for the embedded landing page.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

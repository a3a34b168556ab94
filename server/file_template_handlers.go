package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
)

//go:embed templates/*
var templateFiles embed.FS

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).ParseFS(TemplateFilesFS(), "layout.html", name)
}

type pageTemplates struct {
	index     *template.Template
	login     *template.Template
	register  *template.Template
	dashboard *template.Template
	settings  *template.Template
	callback  *template.Template
}

func (s *Server) parsePages() (pageTemplates, error) {
	var p pageTemplates
	for name, dst := range map[string]**template.Template{
		"index.html":     &p.index,
		"login.html":     &p.login,
		"register.html":  &p.register,
		"dashboard.html": &p.dashboard,
		"settings.html":  &p.settings,
	} {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return p, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = tmpl
	}

	// The popup page stands alone.
	callback, err := template.ParseFS(TemplateFilesFS(), "oauth_callback.html")
	if err != nil {
		return p, fmt.Errorf("parse oauth_callback.html: %w", err)
	}
	p.callback = callback
	return p, nil
}

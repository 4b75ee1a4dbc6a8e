// Package views holds the dashboard's server-rendered pages.
package views

import (
	"embed"
	"html/template"
	"strconv"

	"pubdetect/internal/gauge"
	"pubdetect/internal/history"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is the data every template receives.
type Page struct {
	Title    string
	Theme    string
	Username string
	SignedIn bool
	Error    string
	Notice   string
}

type AuthPage struct {
	Page
	Identifier string
}

type ResultView struct {
	Label        string
	Confidence   float64
	IsPub        bool
	PersistError string
}

type HistoryItem struct {
	Label      string
	Confidence string
	ImageURL   string
	Time       string
	IsPub      bool
}

type DashboardPage struct {
	Page
	Result       *ResultView
	Preview      string
	Busy         bool
	History      []HistoryItem
	HistoryError string
	Summary      history.Summary
	MaxUploadMB  int64
}

type WebcamPage struct {
	Page
	StreamPath string
}

var funcs = template.FuncMap{
	// gauge.SVG escapes the label itself.
	"gauge": func(value float64, label string) template.HTML {
		return template.HTML(gauge.New(value, label, gauge.Options{}).SVG())
	},
	"percent": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64) + "%"
	},
	// Previews are data URLs built from sniffed image bytes.
	"dataURL": func(s string) template.URL {
		return template.URL(s)
	},
}

// Parse loads every page template.
func Parse() (*template.Template, error) {
	return template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

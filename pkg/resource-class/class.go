package resourceclass

import (
	"net/http"
	"path"
	"strings"
)

// Class is the resource class of a request. Every request maps to exactly
// one class; the class decides which caching strategy applies.
type Class int

const (
	// Api resources bypass the cache entirely.
	Api Class = iota
	// Html resources are navigational documents.
	Html
	// StyleScript resources are CSS and JS assets.
	StyleScript
	// Static resources are images, fonts and everything else.
	Static
)

func (c Class) String() string {
	switch c {
	case Api:
		return "api"
	case Html:
		return "html"
	case StyleScript:
		return "style-script"
	case Static:
		return "static"
	}
	return "unknown"
}

// Classify maps a request to its resource class based on URL path, Accept
// header and file extension. It is stateless and total.
func Classify(r *http.Request) Class {
	urlPath := r.URL.Path
	if urlPath == "/api" || strings.HasPrefix(urlPath, "/api/") {
		return Api
	}
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return Api
	}
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".css", ".js", ".mjs":
		return StyleScript
	case ".html", ".htm":
		return Html
	case "":
		// extensionless paths are navigations
		return Html
	}
	if strings.Contains(accept, "text/html") {
		return Html
	}
	return Static
}

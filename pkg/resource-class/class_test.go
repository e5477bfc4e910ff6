package resourceclass

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		accept string
		want   Class
	}{
		{"api path", "/api/posts", "", Api},
		{"api root", "/api", "", Api},
		{"json accept", "/data", "application/json", Api},
		{"navigation root", "/", "text/html,application/xhtml+xml", Html},
		{"extensionless path", "/about", "", Html},
		{"html extension", "/index.html", "", Html},
		{"stylesheet", "/assets/site.css", "text/css,*/*", StyleScript},
		{"script", "/assets/app.js", "*/*", StyleScript},
		{"module script", "/assets/app.mjs", "*/*", StyleScript},
		{"image", "/images/photo.jpg", "image/webp,*/*", Static},
		{"font", "/fonts/sans.woff2", "", Static},
		{"uppercase extension", "/ASSETS/SITE.CSS", "", StyleScript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.path, nil)
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}
			assert.Equal(t, tt.want, Classify(r))
		})
	}
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "api", Api.String())
	assert.Equal(t, "html", Html.String())
	assert.Equal(t, "style-script", StyleScript.String())
	assert.Equal(t, "static", Static.String())
}

// Package render serves the HTML pages of the application from templates
// embedded in the binary.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/patients/internal/platform/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Pages lists every page template. Each is parsed together with the layout.
var Pages = []string{
	"login",
	"not-authorized",
	"patients",
	"form-patients",
	"edit-patient",
	"not-found",
	"error",
}

// Page is the value every template executes against. Data is the
// handler's view model.
type Page struct {
	Principal *auth.Principal
	CSRF      string
	RequestID string
	Year      int
	Data      interface{}
}

func (p Page) Authenticated() bool { return p.Principal != nil }

func (p Page) HasRole(role string) bool { return p.Principal.HasRole(role) }

// Renderer implements echo.Renderer.
type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"date": formatDate,
		"add":  func(a, b int) int { return a + b },
		"sub":  func(a, b int) int { return a - b },
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(Pages))}
	for _, name := range Pages {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/partials.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("render: unknown page %q", name)
	}
	page := Page{
		Principal: auth.PrincipalFromContext(c.Request().Context()),
		Year:      time.Now().Year(),
		Data:      data,
	}
	page.CSRF, _ = c.Get("csrf").(string)
	page.RequestID, _ = c.Get("request_id").(string)
	return t.ExecuteTemplate(w, "layout", page)
}

// Static returns the embedded assets rooted at the static directory.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

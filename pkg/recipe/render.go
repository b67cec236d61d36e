package recipe

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"text/template"

	"github.com/openfroyo/mongorecipe/pkg/engine"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// Renderer produces file content from a named template.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// TemplateData is the value templates are executed against.
type TemplateData struct {
	Options  InstallOptions
	Profile  Profile
	Facts    engine.StaticFacts
	Codename string

	// Arch is the normalized architecture.
	Arch string

	// Tarball-only values.
	Tarball    string
	InstallDir string
}

// TemplateRenderer renders text/template files named <name>.tmpl from a file system.
type TemplateRenderer struct {
	fsys  fs.FS
	funcs template.FuncMap
}

// NewTemplateRenderer returns a renderer reading from fsys, or from the
// built-in templates when fsys is nil.
func NewTemplateRenderer(fsys fs.FS) *TemplateRenderer {
	if fsys == nil {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			panic(fmt.Sprintf("embedded templates: %v", err))
		}
		fsys = sub
	}
	return &TemplateRenderer{
		fsys: fsys,
		funcs: template.FuncMap{
			"quote":     strconv.Quote,
			"verbosity": func(n int) string { return strings.Repeat("v", n) },
		},
	}
}

// OverlayFS serves files from dir first and falls back to base.
type OverlayFS struct {
	Dir  fs.FS
	Base fs.FS
}

// Open implements fs.FS.
func (o OverlayFS) Open(name string) (fs.File, error) {
	if o.Dir != nil {
		if f, err := o.Dir.Open(name); err == nil {
			return f, nil
		}
	}
	return o.Base.Open(name)
}

// DefaultTemplates returns the built-in template file system.
func DefaultTemplates() fs.FS {
	sub, _ := fs.Sub(embeddedTemplates, "templates")
	return sub
}

// Render executes template name with data.
// A missing or malformed template, or a failed execution, is a TEMPLATE_RENDER_ERROR.
func (r *TemplateRenderer) Render(name string, data any) (string, error) {
	file := name + ".tmpl"
	src, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return "", renderError(name, "template not found", err)
	}

	tmpl, err := template.New(file).Funcs(r.funcs).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return "", renderError(name, "template is malformed", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", renderError(name, "template execution failed", err)
	}
	return buf.String(), nil
}

func renderError(name, msg string, err error) error {
	return engine.NewPermanentError(fmt.Sprintf("%s: %s", msg, name), err).
		WithCode(engine.ErrCodeTemplateRender).
		WithDetail("template", name)
}

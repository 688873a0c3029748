package playground

import (
	"embed"
	"regexp"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

var templates = template.Must(template.ParseFS(templateFiles, "templates/*.tmpl"))

// Template selects how code is wrapped before it runs.
type Template int

const (
	// Expr evaluates code as a block expression and prints its debug form.
	Expr Template = iota
	// Bare runs code as a complete crate.
	Bare
	// AllocStats evaluates code and prints allocation statistics.
	AllocStats
)

var (
	crateAttrs = regexp.MustCompile(`^(\s*#!\[.*?\])*`)
	mainFn     = regexp.MustCompile(`(?m)^\s*(pub(\([^)]*\))?\s+)?((async|const|unsafe|extern(\s+"[^"]*")?)\s+)*fn\s+main\s*\(`)
	crateType  = regexp.MustCompile(`#!\[\s*crate_type\s*=\s*"([^"]*)"\s*\]`)
)

// Wrap renders code with a template. Leading crate attributes in code are
// hoisted to the top of the generated crate.
func Wrap(t Template, code string) string {
	var name string
	switch t {
	case Bare:
		return code
	case Expr:
		name = "expr.rs.tmpl"
	case AllocStats:
		name = "allocstats.rs.tmpl"
	default:
		panic("playground: unknown template")
	}
	attrs := crateAttrs.FindString(code)
	data := struct{ Attrs, Code string }{attrs, code[len(attrs):]}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, &data); err != nil {
		// Only possible if the embedded templates are broken.
		panic(err)
	}
	return b.String()
}

// BareCrateType decides the crate type for code run without a template.
// Code without a main function is a library unless a crate_type attribute
// says otherwise.
func BareCrateType(code string) CrateType {
	t := Bin
	if !mainFn.MatchString(code) {
		t = Lib
	}
	for _, m := range crateType.FindAllStringSubmatch(code, -1) {
		switch m[1] {
		case "bin":
			t = Bin
		case "lib":
			t = Lib
		}
	}
	return t
}

// PasteText formats code and its output for pasting.
func PasteText(code, stdout, stderr string) string {
	data := struct{ Code, Stdout, Stderr string }{code, stdout, stderr}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, "paste.rs.tmpl", &data); err != nil {
		panic(err)
	}
	return b.String()
}

package httpapi

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// indexMux is the instrumentation router. Everything registered through it is
// listed, with a description, on an HTML page at "/".
type indexMux struct {
	chi.Router
	Service string
	Links   []*muxLink
}

func newIndexMux(service string) *indexMux {
	im := &indexMux{
		Router:  chi.NewRouter(),
		Service: service,
	}
	im.Router.Get("/", im.list)
	return im
}

// addLink lists href. Parameterized patterns are left off the page.
func (im *indexMux) addLink(href, description string) {
	if strings.Contains(href, "{") {
		return
	}
	im.Links = append(im.Links, &muxLink{
		Href:        href,
		Description: description,
	})
}

// handle routes pattern to handler for the given methods, or for every method
// when none are given.
func (im *indexMux) handle(pattern, description string, handler http.Handler, methods ...string) {
	im.addLink(pattern, description)
	if len(methods) == 0 {
		im.Router.Handle(pattern, handler)
		return
	}
	for _, m := range methods {
		im.Router.Method(m, pattern, handler)
	}
}

// mount attaches a sub-router at prefix, listed under href.
func (im *indexMux) mount(prefix, href, description string, handler http.Handler) {
	im.addLink(href, description)
	im.Router.Mount(prefix, handler)
}

func (im *indexMux) list(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	listTmpl.Execute(w, im)
}

type muxLink struct {
	Href        string
	Description string
}

var listTmpl = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8" />
<title>{{.Service }} Instrumentation Links</title>
<body>
<table>
{{ range .Links -}}
<tr><td><a href="{{.Href}}"><pre>{{.Href}}</pre></a></td><td>{{.Description}}</td></tr>
{{ end -}}
</table>
</body>
</html>
`))

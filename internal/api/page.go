package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/starford/bones/internal/queryview"
	"github.com/starford/bones/internal/vibeservice"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Label}}</title>
<style>
body { font-family: system-ui, sans-serif; text-align: center; margin-top: 20vh; }
h1 { font-size: 4rem; margin: 0; }
p { color: #555; }
</style>
</head>
<body>
<h1 id="label">{{.Label}}</h1>
<p id="detail">{{.Detail}}</p>
{{if .ObservedAtLocal}}<p id="observed">Read {{.ObservedAtLocal}}</p>{{end}}
<script>
const es = new EventSource("/api/events");
es.addEventListener("vibe.updated", (e) => {
  const v = JSON.parse(e.data);
  document.title = v.label;
  document.getElementById("label").textContent = v.label;
  document.getElementById("detail").textContent = v.detail || "";
  let observed = document.getElementById("observed");
  if (!observed) {
    observed = document.createElement("p");
    observed.id = "observed";
    document.getElementById("detail").after(observed);
  }
  observed.textContent = v.observed_at_local ? "Read " + v.observed_at_local : "";
});
</script>
</body>
</html>
`))

// PageHandler renders the current view as HTML.
type PageHandler struct {
	svc  *vibeservice.Service
	tmpl *template.Template
}

// NewPageHandler creates the HTML page handler.
func NewPageHandler(svc *vibeservice.Service) *PageHandler {
	return &PageHandler{svc: svc, tmpl: pageTemplate}
}

// ServeHTTP handles GET /. The page is rendered into a buffer first so a
// template failure turns into a clean 500 and never a half-written page.
func (p *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	view := p.svc.GetCurrentView(r.Context())

	var buf bytes.Buffer
	if err := p.render(&buf, view); err != nil {
		slog.Error("render page failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = buf.WriteTo(w)
}

func (p *PageHandler) render(buf *bytes.Buffer, view queryview.Result) error {
	return p.tmpl.Execute(buf, view)
}

package server

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/ehrlich-b/accesslog/internal/record"
)

type indexPage struct {
	Statuses []int
}

type resultsPage struct {
	Status    int
	Count     int64
	Records   []record.Record
	Truncated bool
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Access Log Search</title></head>
<body>
<h1>Access Log Search</h1>
{{if .Statuses}}
<form method="post" action="/search">
  <label for="response_code">Response code</label>
  <select id="response_code" name="response_code">
  {{range .Statuses}}<option value="{{.}}">{{.}}</option>
  {{end}}</select>
  <button type="submit">Search</button>
</form>
{{else}}
<p>No logs loaded.</p>
{{end}}
</body>
</html>
`))

var resultsTemplate = template.Must(template.New("results").Parse(`<!DOCTYPE html>
<html>
<head><title>Response {{.Status}}</title></head>
<body>
<h1>Response {{.Status}}</h1>
<p>{{.Count}} matching entries{{if .Truncated}}, showing the first {{len .Records}}{{end}}.</p>
<table>
<tr><th>ID</th><th>Timestamp</th><th>Remote IP</th><th>User</th><th>Request</th><th>Bytes</th><th>Referrer</th><th>Agent</th></tr>
{{range .Records}}<tr><td>{{.ID}}</td><td>{{.Timestamp.Format "2006-01-02 15:04:05 -0700"}}</td><td>{{.RemoteIP}}</td><td>{{.RemoteUser}}</td><td>{{.Request}}</td><td>{{.BytesSent}}</td><td>{{.Referrer}}</td><td>{{.Agent}}</td></tr>
{{end}}</table>
<p><a href="/">New search</a></p>
</body>
</html>
`))

// render executes t into a buffer first so a template error never sends a
// partial page.
func (h *QueryHandler) render(w http.ResponseWriter, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		h.log.Error("failed to render page", "template", t.Name(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

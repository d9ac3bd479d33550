package report

import "html/template"

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var logReportTmpl = template.Must(template.New("log_report").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 11px; color: #222; margin: 24px; }
  .header { border-bottom: 2px solid #c17f24; margin-bottom: 12px; padding-bottom: 8px; }
  .header h1 { font-size: 18px; margin: 0 0 4px 0; color: #133e87; }
  .filters span { margin-right: 16px; }
  table { width: 100%; border-collapse: collapse; }
  th { background: #133e87; color: #fff; text-align: left; padding: 6px; }
  td { border-bottom: 1px solid #ddd; padding: 5px 6px; vertical-align: top; }
  .footer { margin-top: 12px; font-size: 9px; color: #777; display: flex; justify-content: space-between; }
  .page-break { page-break-after: always; break-after: page; }
  .empty { padding: 24px; text-align: center; color: #777; }
</style>
</head>
<body>
{{- range $i, $page := .Pages}}
<section class="page" data-page="{{$page.Number}}">
  <div class="header">
    <h1>{{$.Title}}</h1>
    <div class="filters">
      <span>Name: {{$.NameFilter}}</span>
      <span>Date Range: {{$.StartFilter}} - {{$.EndFilter}}</span>
      <span>Total Logs: {{$.Total}}</span>
    </div>
    <div class="generated">Generated {{$.GeneratedAt}}{{if $.GeneratedBy}} by {{$.GeneratedBy}}{{end}}</div>
  </div>
  {{- if $page.Rows}}
  <table>
    <thead>
      <tr><th>#</th><th>Date</th><th>Time</th><th>Name</th><th>Role</th><th>Action</th><th>Description</th></tr>
    </thead>
    <tbody>
      {{- range $page.Rows}}
      <tr class="log-row"><td>{{.Index}}</td><td>{{.Date}}</td><td>{{.Time}}</td><td>{{.Name}}</td><td>{{.Role}}</td><td>{{.Action}}</td><td>{{.Description}}</td></tr>
      {{- end}}
    </tbody>
  </table>
  {{- else}}
  <div class="empty">No activity logs match the selected filters.</div>
  {{- end}}
  <div class="footer">
    <span>Internet of Tsiken</span>
    <span class="page-number">Page {{$page.Number}} of {{$.PageCount}}</span>
  </div>
</section>
{{- if lt (inc $i) $.PageCount}}
<div class="page-break"></div>
{{- end}}
{{- end}}
</body>
</html>
`))

package reporting

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"

	"github.com/kiro-usage/usage-reporter/pkg/presto"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// DailyRecordsQuery selects every report column for the days of the window.
// The date column is compared on its first ten characters so the query works
// whether the crawler typed it as a string, a date or a timestamp.
const DailyRecordsQuery = `SELECT {| .Columns | quoteIdents |}
FROM {| .Table |}
WHERE substr(CAST({| quoteIdent "date" |} AS varchar), 1, 10) BETWEEN '{| prestoDate .ReportingStart |}' AND '{| prestoDate .ReportingEnd |}'
ORDER BY {| quoteIdent "date" |}, {| quoteIdent "userid" |}`

// QueryTemplateContext is the data a query template is rendered with.
type QueryTemplateContext struct {
	// Table is the already qualified (and quoted when needed) table name.
	Table          string
	Columns        []string
	ReportingStart time.Time
	ReportingEnd   time.Time
}

// NewQueryTemplateContext returns a context selecting the report schema.
func NewQueryTemplateContext(table string, start, end time.Time) *QueryTemplateContext {
	return &QueryTemplateContext{
		Table:          table,
		Columns:        usage.Columns,
		ReportingStart: start,
		ReportingEnd:   end,
	}
}

// QueryTemplate is a parsed query template.
type QueryTemplate struct {
	tmpl *template.Template
}

func NewQueryTemplate(queryTemplate string) (*QueryTemplate, error) {
	var templateFuncMap = template.FuncMap{
		"prestoTimestamp": presto.Timestamp,
		"prestoDate":      presto.Date,
		"quoteIdent":      presto.QuoteIdentifier,
		"quoteIdents":     quoteIdents,
		"quoteString":     presto.QuoteString,
	}

	tmpl, err := template.New("usage-query").Delims("{|", "|}").Funcs(sprig.TxtFuncMap()).Funcs(templateFuncMap).Option("missingkey=error").Parse(queryTemplate)
	if err != nil {
		return nil, fmt.Errorf("error parsing query: %v", err)
	}
	return &QueryTemplate{tmpl: tmpl}, nil
}

// LoadQueryTemplate parses the template in path, or DailyRecordsQuery when
// path is empty. A file template is rendered once against a placeholder
// table so unknown fields are reported at load time.
func LoadQueryTemplate(path string) (*QueryTemplate, error) {
	if path == "" {
		return NewQueryTemplate(DailyRecordsQuery)
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read query template %s: %v", path, err)
	}
	tmpl, err := NewQueryTemplate(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid query template %s: %v", path, err)
	}
	now := time.Now()
	if _, err := tmpl.Render(NewQueryTemplateContext("usage", now, now)); err != nil {
		return nil, fmt.Errorf("invalid query template %s: %v", path, err)
	}
	return tmpl, nil
}

func (q *QueryTemplate) Render(tmplCtx *QueryTemplateContext) (string, error) {
	var buf bytes.Buffer
	if err := q.tmpl.Execute(&buf, tmplCtx); err != nil {
		return "", fmt.Errorf("error executing template: %v", err)
	}
	return buf.String(), nil
}

func quoteIdents(names []string) string {
	cols := make([]presto.Column, len(names))
	for i, name := range names {
		cols[i] = presto.Column{Name: name}
	}
	return presto.GenerateQuotedColumnsListSQL(cols)
}

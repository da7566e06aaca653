package reporting

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryTemplateRender(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 30, 0, 0, 0, 0, time.UTC)
	tmplCtx := NewQueryTemplateContext("usage_db.user_report", start, end)

	tests := map[string]struct {
		query       string
		expected    string
		errContains string
	}{
		"dates": {
			query:    "{| prestoDate .ReportingStart |} {| prestoTimestamp .ReportingEnd |}",
			expected: "2025-03-01 2025-03-30 00:00:00.000",
		},
		"identifiers": {
			query:    `{| quoteIdent "user""id" |} {| quoteString "it's" |}`,
			expected: `"user""id" 'it''s'`,
		},
		"sprig functions": {
			query:    `{| .Table | upper |}`,
			expected: "USAGE_DB.USER_REPORT",
		},
		"non string column list": {
			query:       `{| list "a" 1 | quoteIdents |}`,
			errContains: "error executing template",
		},
		"parse error": {
			query:       "{| .Table ",
			errContains: "error parsing query",
		},
		"unknown field": {
			query:       "{| .Nope |}",
			errContains: "error executing template",
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			query, err := renderQuery(tt.query, tmplCtx)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, query)
		})
	}
}

func renderQuery(query string, tmplCtx *QueryTemplateContext) (string, error) {
	tmpl, err := NewQueryTemplate(query)
	if err != nil {
		return "", err
	}
	return tmpl.Render(tmplCtx)
}

func TestDailyRecordsQuery(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 30, 0, 0, 0, 0, time.UTC)

	tmpl, err := LoadQueryTemplate("")
	require.NoError(t, err)
	query, err := tmpl.Render(NewQueryTemplateContext(`"user_report"`, start, end))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, `SELECT "date","userid","client_type",`), query)
	assert.Contains(t, query, `"total_messages"`)
	assert.Contains(t, query, `FROM "user_report"`)
	assert.Contains(t, query, `BETWEEN '2025-03-01' AND '2025-03-30'`)
}

func TestLoadQueryTemplateFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "query-template")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "query.sql")
	require.NoError(t, ioutil.WriteFile(path, []byte("SELECT * FROM {| .Table |}"), 0644))

	tmpl, err := LoadQueryTemplate(path)
	require.NoError(t, err)
	query, err := tmpl.Render(NewQueryTemplateContext("t", time.Now(), time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t", query)

	_, err = LoadQueryTemplate(filepath.Join(dir, "missing.sql"))
	assert.Error(t, err)

	badField := filepath.Join(dir, "bad-field.sql")
	require.NoError(t, ioutil.WriteFile(badField, []byte("SELECT * FROM {| .Tabel |}"), 0644))
	_, err = LoadQueryTemplate(badField)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query template")

	badSyntax := filepath.Join(dir, "bad-syntax.sql")
	require.NoError(t, ioutil.WriteFile(badSyntax, []byte("SELECT * FROM {| .Table "), 0644))
	_, err = LoadQueryTemplate(badSyntax)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing query")
}

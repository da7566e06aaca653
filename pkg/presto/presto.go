package presto

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/prestodb/presto-go-client/presto"

	"github.com/kiro-usage/usage-reporter/pkg/db"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

const (
	// TimestampFormat is the time format string used to produce Presto timestamps.
	TimestampFormat = "2006-01-02 15:04:05.000"
	// DateFormat is the time format string used to produce Presto dates.
	DateFormat = usage.DateLayout
)

type Row map[string]interface{}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExecuteSelect runs query and returns every row keyed by column name.
func ExecuteSelect(ctx context.Context, queryer db.Queryer, query string) ([]Row, error) {
	rows, err := queryer.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []Row
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(Row, len(cols))
		for i, colName := range cols {
			m[colName] = columns[i]
		}
		results = append(results, m)
	}
	// errors of the submitted query only surface once rows.Next() has
	// inspected its status
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("presto SQL error: %v", err)
	}
	return results, nil
}

// QueryMetadata runs DESCRIBE against a table to find its columns.
func QueryMetadata(ctx context.Context, queryer db.Queryer, catalog, schema, tableName string) ([]Column, error) {
	rows, err := ExecuteSelect(ctx, queryer, fmt.Sprintf("DESCRIBE %s", FullyQualifiedTableName(catalog, schema, tableName)))
	if err != nil {
		return nil, fmt.Errorf("failed to query the %s Presto table's metadata: %v", tableName, err)
	}

	var cols []Column
	for _, row := range rows {
		colName, ok := row["Column"].(string)
		if !ok {
			return nil, fmt.Errorf("failed to convert the Presto column name to a string")
		}
		colType, ok := row["Type"].(string)
		if !ok {
			return nil, fmt.Errorf("failed to convert the Presto column type to a string")
		}
		cols = append(cols, Column{Name: colName, Type: colType})
	}
	return cols, nil
}

// ToUsageRows stringifies result rows so they can go through the same
// parsing as CSV exports and Athena results.
func ToUsageRows(rows []Row) []usage.Row {
	out := make([]usage.Row, len(rows))
	for i, row := range rows {
		r := make(usage.Row, len(row))
		for col, val := range row {
			r[usage.NormalizeColumn(col)] = FormatValue(val)
		}
		out[i] = r
	}
	return out
}

// FormatValue renders a scanned column value as text. NULL becomes the
// empty string.
func FormatValue(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(TimestampFormat)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func GenerateQuotedColumnsListSQL(columns []Column) string {
	columnNames := make([]string, len(columns))
	for i, col := range columns {
		columnNames[i] = QuoteIdentifier(col.Name)
	}
	return strings.Join(columnNames, ",")
}

// QuoteIdentifier double quotes a column or table name, escaping embedded
// quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
}

// QuoteString renders s as a single quoted SQL string literal.
func QuoteString(s string) string {
	return `'` + strings.Replace(s, `'`, `''`, -1) + `'`
}

func FullyQualifiedTableName(catalog, schema, tableName string) string {
	var parts []string
	for _, p := range []string{catalog, schema, tableName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

func Timestamp(date time.Time) string {
	return date.UTC().Format(TimestampFormat)
}

func Date(date time.Time) string {
	return date.UTC().Format(DateFormat)
}

package usage

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column names of the user activity report.
const (
	ColumnDate               = "date"
	ColumnUserID             = "userid"
	ColumnClientType         = "client_type"
	ColumnConversations      = "chat_conversations"
	ColumnCreditsUsed        = "credits_used"
	ColumnOverageCap         = "overage_cap"
	ColumnOverageCreditsUsed = "overage_credits_used"
	ColumnOverageEnabled     = "overage_enabled"
	ColumnProfileID          = "profileid"
	ColumnSubscriptionTier   = "subscription_tier"
	ColumnMessages           = "total_messages"
)

// Columns is the report schema in the order the CSV export writes it.
var Columns = []string{
	ColumnDate,
	ColumnUserID,
	ColumnClientType,
	ColumnConversations,
	ColumnCreditsUsed,
	ColumnOverageCap,
	ColumnOverageCreditsUsed,
	ColumnOverageEnabled,
	ColumnProfileID,
	ColumnSubscriptionTier,
	ColumnMessages,
}

// MaxQualitySamples bounds how many dropped row reasons are kept.
const MaxQualitySamples = 10

// Row is a single untyped result row keyed by lower case column name.
type Row map[string]string

// NewRow builds a Row from parallel column and value slices.
func NewRow(columns, values []string) Row {
	row := make(Row, len(columns))
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		row[NormalizeColumn(col)] = values[i]
	}
	return row
}

// NormalizeColumn lower cases and trims a column name.
func NormalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DataQuality counts the rows that were dropped while building a report.
type DataQuality struct {
	TotalRows       int      `json:"totalRows"`
	MalformedRows   int      `json:"malformedRows"`
	DuplicateRows   int      `json:"duplicateRows"`
	OutOfWindowRows int      `json:"outOfWindowRows"`
	Samples         []string `json:"samples,omitempty"`
}

// Skipped is the number of rows that did not contribute to the report.
func (q DataQuality) Skipped() int {
	return q.MalformedRows + q.DuplicateRows + q.OutOfWindowRows
}

// HasWarnings reports whether any row was dropped.
func (q DataQuality) HasWarnings() bool {
	return q.Skipped() > 0
}

func (q *DataQuality) addSample(format string, args ...interface{}) {
	if len(q.Samples) < MaxQualitySamples {
		q.Samples = append(q.Samples, fmt.Sprintf(format, args...))
	}
}

// RecordMalformed counts a row that could not be parsed.
func (q *DataQuality) RecordMalformed(index int, err error) {
	q.MalformedRows++
	q.addSample("row %d: %v", index, err)
}

// RecordDuplicate counts a row whose (user, date) was already seen.
func (q *DataQuality) RecordDuplicate(key string) {
	q.DuplicateRows++
	q.addSample("duplicate row for %s", key)
}

// RecordOutOfWindow counts a row dated outside the reporting window.
func (q *DataQuality) RecordOutOfWindow(key string) {
	q.OutOfWindowRows++
	q.addSample("row for %s is outside the reporting window", key)
}

var errMissingValue = errors.New("missing value")

// ParseRow converts a result row into a DailyRecord. The user, date and
// message count are required. Other numeric columns default to zero when
// empty but a value that is present must be numeric.
func ParseRow(row Row) (DailyRecord, error) {
	var rec DailyRecord
	var err error

	rec.UserID = strings.Trim(strings.TrimSpace(row[ColumnUserID]), `"'`)
	if rec.UserID == "" {
		return rec, fmt.Errorf("column %s: %v", ColumnUserID, errMissingValue)
	}

	dateStr := row[ColumnDate]
	if strings.TrimSpace(dateStr) == "" {
		return rec, fmt.Errorf("column %s: %v", ColumnDate, errMissingValue)
	}
	if rec.Date, err = ParseDate(dateStr); err != nil {
		return rec, fmt.Errorf("column %s: %v", ColumnDate, err)
	}

	if strings.TrimSpace(row[ColumnMessages]) == "" {
		return rec, fmt.Errorf("column %s: %v", ColumnMessages, errMissingValue)
	}
	if rec.Messages, err = parseCount(row, ColumnMessages); err != nil {
		return rec, err
	}
	if rec.Conversations, err = parseCount(row, ColumnConversations); err != nil {
		return rec, err
	}
	if rec.CreditsUsed, err = parseAmount(row, ColumnCreditsUsed); err != nil {
		return rec, err
	}
	if rec.OverageCap, err = parseAmount(row, ColumnOverageCap); err != nil {
		return rec, err
	}
	if rec.OverageCreditsUsed, err = parseAmount(row, ColumnOverageCreditsUsed); err != nil {
		return rec, err
	}
	if v := strings.TrimSpace(row[ColumnOverageEnabled]); v != "" {
		if rec.OverageEnabled, err = strconv.ParseBool(strings.ToLower(v)); err != nil {
			return rec, fmt.Errorf("column %s: invalid boolean %q", ColumnOverageEnabled, v)
		}
	}
	if rec.ClientType, err = ParseClientType(row[ColumnClientType]); err != nil {
		return rec, fmt.Errorf("column %s: %v", ColumnClientType, err)
	}
	if rec.SubscriptionTier, err = ParseSubscriptionTier(row[ColumnSubscriptionTier]); err != nil {
		return rec, fmt.Errorf("column %s: %v", ColumnSubscriptionTier, err)
	}
	rec.ProfileID = strings.TrimSpace(row[ColumnProfileID])
	return rec, nil
}

// ParseRows parses every row, skipping and counting the malformed ones.
func ParseRows(rows []Row) ([]DailyRecord, DataQuality) {
	quality := DataQuality{TotalRows: len(rows)}
	records := make([]DailyRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := ParseRow(row)
		if err != nil {
			quality.RecordMalformed(i, err)
			continue
		}
		records = append(records, rec)
	}
	return records, quality
}

func parseCount(row Row, column string) (int64, error) {
	v := strings.TrimSpace(row[column])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// exports sometimes render integer columns as "5.0"
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil || math.IsNaN(f) || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return 0, fmt.Errorf("column %s: invalid count %q", column, v)
		}
		n = int64(f)
	}
	if n < 0 {
		return 0, fmt.Errorf("column %s: negative count %d", column, n)
	}
	return n, nil
}

func parseAmount(row Row, column string) (float64, error) {
	v := strings.TrimSpace(row[column])
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("column %s: invalid number %q", column, v)
	}
	if f < 0 {
		return 0, fmt.Errorf("column %s: negative amount %v", column, f)
	}
	return f, nil
}

package source

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/kiro-usage/usage-reporter/pkg/aws"
	"github.com/kiro-usage/usage-reporter/pkg/db"
	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/presto"
	"github.com/kiro-usage/usage-reporter/pkg/reporting"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// Source fetches one snapshot of the raw daily usage rows. Sources may
// return rows outside the window; the aggregation drops them.
type Source interface {
	Fetch(ctx context.Context, window engagement.Window) ([]usage.Row, error)
}

// AthenaSource queries the crawled report table through Athena.
type AthenaSource struct {
	Runner   aws.QueryRunner
	Tables   aws.TableResolver
	Database string
	// Table is optional; the first table of Database is used when empty.
	Table  string
	Query  *reporting.QueryTemplate
	Logger log.FieldLogger
}

func (s *AthenaSource) Fetch(ctx context.Context, window engagement.Window) ([]usage.Row, error) {
	table, err := s.Tables.ResolveTable(ctx, s.Database, s.Table)
	if err != nil {
		return nil, err
	}
	query, err := s.Query.Render(reporting.NewQueryTemplateContext(presto.QuoteIdentifier(table), window.Start, window.End))
	if err != nil {
		return nil, err
	}
	s.Logger.WithField("table", table).Debugf("querying athena database %s for %s", s.Database, window)
	return s.Runner.RunQuery(ctx, s.Database, query)
}

// RequiredColumns must exist in a queried table for its rows to parse.
var RequiredColumns = []string{usage.ColumnUserID, usage.ColumnDate, usage.ColumnMessages}

// PrestoSource queries the report table through a Presto connection.
type PrestoSource struct {
	Queryer db.Queryer
	Catalog string
	Schema  string
	Table   string
	Query   *reporting.QueryTemplate

	mu       sync.Mutex
	verified bool
}

func (s *PrestoSource) Fetch(ctx context.Context, window engagement.Window) ([]usage.Row, error) {
	if err := s.verifyTable(ctx); err != nil {
		return nil, err
	}
	table := presto.FullyQualifiedTableName(s.Catalog, s.Schema, presto.QuoteIdentifier(s.Table))
	query, err := s.Query.Render(reporting.NewQueryTemplateContext(table, window.Start, window.End))
	if err != nil {
		return nil, err
	}
	rows, err := presto.ExecuteSelect(ctx, s.Queryer, query)
	if err != nil {
		return nil, fmt.Errorf("could not query presto table %s: %v", table, err)
	}
	return presto.ToUsageRows(rows), nil
}

// verifyTable describes the table on the first fetch and fails when it lacks
// a required column. A failed check is retried on the next fetch.
func (s *PrestoSource) verifyTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified {
		return nil
	}
	cols, err := presto.QueryMetadata(ctx, s.Queryer, s.Catalog, s.Schema, presto.QuoteIdentifier(s.Table))
	if err != nil {
		return err
	}
	found := make(map[string]bool, len(cols))
	for _, col := range cols {
		found[usage.NormalizeColumn(col.Name)] = true
	}
	var missing []string
	for _, col := range RequiredColumns {
		if !found[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("presto table %s is missing required columns: %s", presto.FullyQualifiedTableName(s.Catalog, s.Schema, s.Table), strings.Join(missing, ", "))
	}
	s.verified = true
	return nil
}

func (s *PrestoSource) Close() error {
	return s.Queryer.Close()
}

// S3Source reads the report CSVs straight from the delivery bucket.
type S3Source struct {
	Retriever aws.CSVObjectRetriever
}

func (s *S3Source) Fetch(ctx context.Context, _ engagement.Window) ([]usage.Row, error) {
	return s.Retriever.RetrieveRows(ctx)
}

// FileSource reads report CSVs from a local file or directory.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(ctx context.Context, _ engagement.Window) ([]usage.Row, error) {
	files, err := csvFiles(s.Path)
	if err != nil {
		return nil, err
	}
	var rows []usage.Row
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRows, err := readCSVFile(path)
		if err != nil {
			return nil, err
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func csvFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not access path '%s': %v", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := ioutil.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("could not list directory '%s': %v", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), aws.CSVSuffix) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func readCSVFile(path string) ([]usage.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := usage.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("could not read usage report '%s': %v", path, err)
	}
	return rows, nil
}

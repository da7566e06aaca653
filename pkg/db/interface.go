package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Queryer runs read queries. *sql.DB satisfies it.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	Close() error
}

type loggingQueryer struct {
	queryer    Queryer
	logger     log.FieldLogger
	logQueries bool
}

// NewLoggingQueryer wraps queryer so every statement and its duration is
// logged at debug level when logQueries is set.
func NewLoggingQueryer(queryer Queryer, logger log.FieldLogger, logQueries bool) Queryer {
	return &loggingQueryer{
		queryer:    queryer,
		logger:     logger,
		logQueries: logQueries,
	}
}

func (q *loggingQueryer) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if !q.logQueries {
		return q.queryer.QueryContext(ctx, query, args...)
	}
	start := time.Now()
	rows, err := q.queryer.QueryContext(ctx, query, args...)
	logger := q.logger.WithField("duration", time.Since(start))
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Debugf("QUERY: %s [%s]", compact(query), argsString(args...))
	return rows, err
}

func (q *loggingQueryer) Close() error {
	return q.queryer.Close()
}

// compact collapses the whitespace of a templated query onto one line.
func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// argsString pretty prints query arguments for logging.
func argsString(args ...interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		var v interface{} = a
		if x, ok := v.(driver.Valuer); ok {
			if y, err := x.Value(); err == nil {
				v = y
			}
		}
		switch v.(type) {
		case string, []byte:
			parts[i] = fmt.Sprintf("%d:%q", i+1, v)
		default:
			parts[i] = fmt.Sprintf("%d:%v", i+1, v)
		}
	}
	return strings.Join(parts, " ")
}

package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	log "github.com/sirupsen/logrus"

	"github.com/kiro-usage/usage-reporter/pkg/aws"
	"github.com/kiro-usage/usage-reporter/pkg/db"
	"github.com/kiro-usage/usage-reporter/pkg/presto"
	"github.com/kiro-usage/usage-reporter/pkg/reporting"
)

const defaultPrestoUser = "usage-reporter"

// Options configure the sources built by NewFromURL.
type Options struct {
	Logger log.FieldLogger
	// Query renders the SQL of the engine backed sources.
	Query *reporting.QueryTemplate

	AWSRegion  string
	AWSSession *session.Session
	Athena     aws.AthenaConfig

	PrestoConnBackoff time.Duration
	PrestoMaxRetries  int
	LogQueries        bool
}

// NewFromURL builds a Source from a URL:
//
//	athena://<database>[/<table>]
//	presto://[user@]<host:port>/<catalog>/<schema>/<table>
//	s3://<bucket>[/<prefix>]
//	file:///<path>
//
// A value without a scheme is treated as a local path.
func NewFromURL(ctx context.Context, rawURL string, opts Options) (Source, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("a valid source URL (athena://, presto://, s3:// or file://) must be given: %v", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.New()
	}
	if opts.Query == nil {
		if opts.Query, err = reporting.NewQueryTemplate(reporting.DailyRecordsQuery); err != nil {
			return nil, err
		}
	}

	switch u.Scheme {
	case "athena":
		return newAthenaSource(u, opts)
	case "presto":
		return newPrestoSource(ctx, u, opts)
	case "s3":
		return newS3Source(u, opts)
	case "file", "":
		if u.Path == "" {
			return nil, fmt.Errorf("a path must be given in source URL '%s'", rawURL)
		}
		return &FileSource{Path: u.Path}, nil
	default:
		return nil, fmt.Errorf("unknown scheme '%s' given, please provide athena://, presto://, s3:// or file://", u.Scheme)
	}
}

func (opts Options) session() (*session.Session, error) {
	if opts.AWSSession != nil {
		return opts.AWSSession, nil
	}
	return aws.NewSession(opts.AWSRegion)
}

func newAthenaSource(u *url.URL, opts Options) (Source, error) {
	database := u.Host
	if database == "" {
		return nil, fmt.Errorf("athena source URL must name a database: athena://<database>[/<table>]")
	}
	sess, err := opts.session()
	if err != nil {
		return nil, fmt.Errorf("could not create AWS session: %v", err)
	}
	return &AthenaSource{
		Runner:   aws.NewAthenaQueryRunner(sess, opts.Logger, opts.Athena),
		Tables:   aws.NewGlueTableResolver(sess),
		Database: database,
		Table:    strings.Trim(u.Path, "/"),
		Query:    opts.Query,
		Logger:   opts.Logger.WithField("component", "athena-source"),
	}, nil
}

func newPrestoSource(ctx context.Context, u *url.URL, opts Options) (Source, error) {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if u.Host == "" || len(parts) != 3 {
		return nil, fmt.Errorf("presto source URL must look like presto://<host:port>/<catalog>/<schema>/<table>")
	}
	catalog, schema, table := parts[0], parts[1], parts[2]

	user := defaultPrestoUser
	if u.User != nil && u.User.Username() != "" {
		user = u.User.Username()
	}
	connStr := fmt.Sprintf("http://%s@%s?catalog=%s&schema=%s", user, u.Host, url.QueryEscape(catalog), url.QueryEscape(schema))

	conn, err := presto.NewPrestoConnWithRetry(ctx, opts.Logger, connStr, opts.PrestoConnBackoff, opts.PrestoMaxRetries)
	if err != nil {
		return nil, err
	}
	return &PrestoSource{
		Queryer: db.NewLoggingQueryer(conn, opts.Logger.WithField("component", "presto"), opts.LogQueries),
		Catalog: catalog,
		Schema:  schema,
		Table:   table,
		Query:   opts.Query,
	}, nil
}

func newS3Source(u *url.URL, opts Options) (Source, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("s3 source URL must name a bucket: s3://<bucket>[/<prefix>]")
	}
	sess, err := opts.session()
	if err != nil {
		return nil, fmt.Errorf("could not create AWS session: %v", err)
	}
	return &S3Source{
		Retriever: aws.NewCSVObjectRetriever(sess, u.Host, strings.TrimPrefix(u.Path, "/")),
	}, nil
}

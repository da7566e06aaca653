package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	log "github.com/sirupsen/logrus"

	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

const defaultPollInterval = time.Second

// QueryRunner runs SQL through Athena and returns the result as usage rows.
type QueryRunner interface {
	RunQuery(ctx context.Context, database, query string) ([]usage.Row, error)
}

type AthenaConfig struct {
	// OutputLocation is the s3:// URI Athena writes results to. It may be
	// empty when the workgroup enforces its own location.
	OutputLocation string
	WorkGroup      string
	Catalog        string
	PollInterval   time.Duration
}

type athenaQueryRunner struct {
	athena athenaiface.AthenaAPI
	cfg    AthenaConfig
	logger log.FieldLogger
}

func NewAthenaQueryRunner(p client.ConfigProvider, logger log.FieldLogger, cfg AthenaConfig) QueryRunner {
	return newAthenaQueryRunner(athena.New(p), logger, cfg)
}

func newAthenaQueryRunner(api athenaiface.AthenaAPI, logger log.FieldLogger, cfg AthenaConfig) *athenaQueryRunner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &athenaQueryRunner{
		athena: api,
		cfg:    cfg,
		logger: logger.WithField("component", "athena"),
	}
}

// RunQuery starts the query, waits for it to reach a terminal state and
// reads every result page. The query is stopped if ctx ends first.
func (r *athenaQueryRunner) RunQuery(ctx context.Context, database, query string) ([]usage.Row, error) {
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		QueryExecutionContext: &athena.QueryExecutionContext{
			Database: aws.String(database),
		},
	}
	if r.cfg.Catalog != "" {
		input.QueryExecutionContext.Catalog = aws.String(r.cfg.Catalog)
	}
	if r.cfg.OutputLocation != "" {
		input.ResultConfiguration = &athena.ResultConfiguration{OutputLocation: aws.String(r.cfg.OutputLocation)}
	}
	if r.cfg.WorkGroup != "" {
		input.WorkGroup = aws.String(r.cfg.WorkGroup)
	}

	start, err := r.athena.StartQueryExecutionWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("could not start athena query: %v", err)
	}
	id := aws.StringValue(start.QueryExecutionId)
	logger := r.logger.WithField("queryExecutionId", id)
	logger.Debugf("started athena query")

	if err := r.wait(ctx, id); err != nil {
		return nil, err
	}
	rows, err := r.results(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Debugf("athena query returned %d rows", len(rows))
	return rows, nil
}

func (r *athenaQueryRunner) wait(ctx context.Context, id string) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		out, err := r.athena.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(id),
		})
		if err != nil {
			return fmt.Errorf("could not get status of athena query %s: %v", id, err)
		}
		var state, reason string
		if out.QueryExecution != nil && out.QueryExecution.Status != nil {
			state = aws.StringValue(out.QueryExecution.Status.State)
			reason = aws.StringValue(out.QueryExecution.Status.StateChangeReason)
		}
		switch state {
		case athena.QueryExecutionStateSucceeded:
			return nil
		case athena.QueryExecutionStateFailed, athena.QueryExecutionStateCancelled:
			return fmt.Errorf("athena query %s %s: %s", id, state, reason)
		}

		select {
		case <-ctx.Done():
			r.stop(id)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *athenaQueryRunner) stop(id string) {
	// ctx is already done, give the stop request its own deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := r.athena.StopQueryExecutionWithContext(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	})
	if err != nil {
		r.logger.WithError(err).Warnf("could not stop athena query %s", id)
	}
}

func (r *athenaQueryRunner) results(ctx context.Context, id string) ([]usage.Row, error) {
	var columns []string
	var rows []usage.Row
	first := true
	err := r.athena.GetQueryResultsPagesWithContext(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(id),
	}, func(out *athena.GetQueryResultsOutput, lastPage bool) bool {
		if out.ResultSet == nil {
			return true
		}
		if columns == nil && out.ResultSet.ResultSetMetadata != nil {
			for _, info := range out.ResultSet.ResultSetMetadata.ColumnInfo {
				columns = append(columns, aws.StringValue(info.Name))
			}
		}
		for _, row := range out.ResultSet.Rows {
			// the first row of the first page repeats the column names
			if first {
				first = false
				continue
			}
			values := make([]string, len(row.Data))
			for i, datum := range row.Data {
				values[i] = aws.StringValue(datum.VarCharValue)
			}
			rows = append(rows, usage.NewRow(columns, values))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("could not read results of athena query %s: %v", id, err)
	}
	return rows, nil
}

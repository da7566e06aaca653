package mock

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
)

// Athena answers every query with a fixed result. The query reports
// RUNNING for Pending status polls before reaching State.
type Athena struct {
	sync.Mutex
	athenaiface.AthenaAPI

	Columns []string
	Rows    [][]string
	// PageSize bounds the rows per result page, the header row included.
	PageSize int
	Pending  int
	State    string
	Reason   string

	Queries  []string
	Inputs   []*athena.StartQueryExecutionInput
	Polls    int
	Stopped  []string
	StartErr error
}

func (m *Athena) StartQueryExecutionWithContext(_ aws.Context, in *athena.StartQueryExecutionInput, _ ...request.Option) (*athena.StartQueryExecutionOutput, error) {
	m.Lock()
	defer m.Unlock()
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	m.Queries = append(m.Queries, aws.StringValue(in.QueryString))
	m.Inputs = append(m.Inputs, in)
	return &athena.StartQueryExecutionOutput{
		QueryExecutionId: aws.String(fmt.Sprintf("query-%d", len(m.Queries))),
	}, nil
}

func (m *Athena) GetQueryExecutionWithContext(_ aws.Context, in *athena.GetQueryExecutionInput, _ ...request.Option) (*athena.GetQueryExecutionOutput, error) {
	m.Lock()
	defer m.Unlock()
	m.Polls++
	state := m.State
	if state == "" {
		state = athena.QueryExecutionStateSucceeded
	}
	if m.Polls <= m.Pending {
		state = athena.QueryExecutionStateRunning
	}
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athena.QueryExecution{
			QueryExecutionId: in.QueryExecutionId,
			Status: &athena.QueryExecutionStatus{
				State:             aws.String(state),
				StateChangeReason: aws.String(m.Reason),
			},
		},
	}, nil
}

func (m *Athena) StopQueryExecutionWithContext(_ aws.Context, in *athena.StopQueryExecutionInput, _ ...request.Option) (*athena.StopQueryExecutionOutput, error) {
	m.Lock()
	defer m.Unlock()
	m.Stopped = append(m.Stopped, aws.StringValue(in.QueryExecutionId))
	return &athena.StopQueryExecutionOutput{}, nil
}

func (m *Athena) GetQueryResultsPagesWithContext(_ aws.Context, in *athena.GetQueryResultsInput, fn func(*athena.GetQueryResultsOutput, bool) bool, _ ...request.Option) error {
	m.Lock()
	defer m.Unlock()

	all := append([][]string{m.Columns}, m.Rows...)
	size := m.PageSize
	if size <= 0 {
		size = len(all)
	}
	var info []*athena.ColumnInfo
	for _, c := range m.Columns {
		info = append(info, &athena.ColumnInfo{Name: aws.String(c), Type: aws.String("varchar")})
	}
	for start := 0; start < len(all); start += size {
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		var rows []*athena.Row
		for _, values := range all[start:end] {
			row := &athena.Row{}
			for _, v := range values {
				row.Data = append(row.Data, &athena.Datum{VarCharValue: aws.String(v)})
			}
			rows = append(rows, row)
		}
		out := &athena.GetQueryResultsOutput{
			ResultSet: &athena.ResultSet{
				ResultSetMetadata: &athena.ResultSetMetadata{ColumnInfo: info},
				Rows:              rows,
			},
		}
		if !fn(out, end == len(all)) {
			return nil
		}
	}
	return nil
}

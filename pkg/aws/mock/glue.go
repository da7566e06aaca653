package mock

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
)

// Glue holds the table names of each database.
type Glue struct {
	glueiface.GlueAPI
	Tables map[string][]string
}

func (m *Glue) GetTablesWithContext(_ aws.Context, in *glue.GetTablesInput, _ ...request.Option) (*glue.GetTablesOutput, error) {
	tables, ok := m.Tables[aws.StringValue(in.DatabaseName)]
	if !ok {
		return nil, fmt.Errorf("EntityNotFoundException: database %s not found", aws.StringValue(in.DatabaseName))
	}
	if in.MaxResults != nil && int(*in.MaxResults) < len(tables) {
		tables = tables[:*in.MaxResults]
	}
	out := &glue.GetTablesOutput{}
	for _, name := range tables {
		out.TableList = append(out.TableList, &glue.TableData{Name: aws.String(name)})
	}
	return out, nil
}

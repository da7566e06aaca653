package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
)

// TableResolver finds the table the crawler created for the usage reports.
type TableResolver interface {
	ResolveTable(ctx context.Context, database, table string) (string, error)
}

type glueTableResolver struct {
	glue glueiface.GlueAPI
}

func NewGlueTableResolver(p client.ConfigProvider) TableResolver {
	return &glueTableResolver{glue: glue.New(p)}
}

// ResolveTable returns table when it is set. Otherwise the first table of
// the database is used, since the crawler names the table after the S3
// prefix it crawled.
func (r *glueTableResolver) ResolveTable(ctx context.Context, database, table string) (string, error) {
	if table != "" {
		return table, nil
	}
	out, err := r.glue.GetTablesWithContext(ctx, &glue.GetTablesInput{
		DatabaseName: aws.String(database),
		MaxResults:   aws.Int64(1),
	})
	if err != nil {
		return "", fmt.Errorf("could not list tables of glue database %s: %v", database, err)
	}
	if len(out.TableList) == 0 || aws.StringValue(out.TableList[0].Name) == "" {
		return "", fmt.Errorf("glue database %s has no tables, run the crawler first", database)
	}
	return aws.StringValue(out.TableList[0].Name), nil
}

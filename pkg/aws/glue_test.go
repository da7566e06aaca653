package aws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-usage/usage-reporter/pkg/aws/mock"
)

func TestGlueResolveTable(t *testing.T) {
	resolver := &glueTableResolver{glue: &mock.Glue{Tables: map[string][]string{
		"usage_db": {"user_report", "other"},
		"empty_db": nil,
	}}}
	ctx := context.Background()

	tests := map[string]struct {
		database    string
		table       string
		expected    string
		errContains string
	}{
		"explicit table wins": {
			database: "missing_db",
			table:    "configured",
			expected: "configured",
		},
		"first table of the database": {
			database: "usage_db",
			expected: "user_report",
		},
		"empty database asks for the crawler": {
			database:    "empty_db",
			errContains: "run the crawler first",
		},
		"unknown database": {
			database:    "missing_db",
			errContains: "could not list tables",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			table, err := resolver.ResolveTable(ctx, tt.database, tt.table)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, table)
		})
	}
}

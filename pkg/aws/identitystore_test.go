package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/identitystore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-usage/usage-reporter/pkg/aws/mock"
)

func testUsers() []*identitystore.User {
	return []*identitystore.User{
		{UserId: aws.String("id-1"), UserName: aws.String("alice"), DisplayName: aws.String("Alice A")},
		{UserId: aws.String("id-2"), DisplayName: aws.String("Bob B")},
		{UserId: aws.String("id-3"), Emails: []*identitystore.Email{{Value: aws.String("carol@example.com")}}},
		{UserId: aws.String("id-4")},
	}
}

func TestIdentityStoreListUserIDs(t *testing.T) {
	api := &mock.IdentityStore{Users: testUsers(), PageSize: 3}
	dir := newIdentityStoreDirectory(api, logrus.New(), "d-123")
	ctx := context.Background()

	ids, err := dir.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1", "id-2", "id-3", "id-4"}, ids)

	assert.Equal(t, "alice", dir.DisplayName(ctx, "id-1"))
	assert.Equal(t, "Bob B", dir.DisplayName(ctx, "id-2"))
	assert.Equal(t, "carol@example.com", dir.DisplayName(ctx, "id-3"))
	assert.Equal(t, "id-4", dir.DisplayName(ctx, "id-4"))
	assert.Equal(t, 0, api.Describes, "names should come from the listing")
}

func TestIdentityStoreDisplayName(t *testing.T) {
	api := &mock.IdentityStore{Users: testUsers()}
	dir := newIdentityStoreDirectory(api, logrus.New(), "d-123")
	ctx := context.Background()

	assert.Equal(t, "Bob B", dir.DisplayName(ctx, "id-2"))
	assert.Equal(t, "Bob B", dir.DisplayName(ctx, "id-2"))
	assert.Equal(t, 1, api.Describes)

	assert.Equal(t, "unknown", dir.DisplayName(ctx, "unknown"))
}

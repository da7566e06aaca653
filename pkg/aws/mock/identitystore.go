package mock

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/identitystore"
	"github.com/aws/aws-sdk-go/service/identitystore/identitystoreiface"
)

// IdentityStore serves a fixed user list, PageSize users per page.
type IdentityStore struct {
	sync.Mutex
	identitystoreiface.IdentityStoreAPI

	Users     []*identitystore.User
	PageSize  int
	Describes int
}

func (m *IdentityStore) ListUsersPagesWithContext(_ aws.Context, in *identitystore.ListUsersInput, fn func(*identitystore.ListUsersOutput, bool) bool, _ ...request.Option) error {
	size := m.PageSize
	if size <= 0 {
		size = len(m.Users) + 1
	}
	for start := 0; start == 0 || start < len(m.Users); start += size {
		end := start + size
		if end > len(m.Users) {
			end = len(m.Users)
		}
		if !fn(&identitystore.ListUsersOutput{Users: m.Users[start:end]}, end == len(m.Users)) {
			return nil
		}
	}
	return nil
}

func (m *IdentityStore) DescribeUserWithContext(_ aws.Context, in *identitystore.DescribeUserInput, _ ...request.Option) (*identitystore.DescribeUserOutput, error) {
	m.Lock()
	m.Describes++
	m.Unlock()
	for _, u := range m.Users {
		if aws.StringValue(u.UserId) == aws.StringValue(in.UserId) {
			return &identitystore.DescribeUserOutput{
				IdentityStoreId: in.IdentityStoreId,
				UserId:          u.UserId,
				UserName:        u.UserName,
				DisplayName:     u.DisplayName,
				Emails:          u.Emails,
			}, nil
		}
	}
	return nil, fmt.Errorf("ResourceNotFoundException: user %s not found", aws.StringValue(in.UserId))
}

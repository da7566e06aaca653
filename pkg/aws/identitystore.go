package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/identitystore"
	"github.com/aws/aws-sdk-go/service/identitystore/identitystoreiface"
	log "github.com/sirupsen/logrus"
)

// Directory lists the known users and resolves their display names.
type Directory interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	DisplayName(ctx context.Context, userID string) string
}

type IdentityStoreDirectory struct {
	api             identitystoreiface.IdentityStoreAPI
	identityStoreID string
	logger          log.FieldLogger

	mu    sync.Mutex
	names map[string]string
}

var _ Directory = (*IdentityStoreDirectory)(nil)

func NewIdentityStoreDirectory(p client.ConfigProvider, logger log.FieldLogger, identityStoreID string) *IdentityStoreDirectory {
	return newIdentityStoreDirectory(identitystore.New(p), logger, identityStoreID)
}

func newIdentityStoreDirectory(api identitystoreiface.IdentityStoreAPI, logger log.FieldLogger, identityStoreID string) *IdentityStoreDirectory {
	return &IdentityStoreDirectory{
		api:             api,
		identityStoreID: identityStoreID,
		logger:          logger.WithField("component", "identitystore"),
		names:           map[string]string{},
	}
}

// ListUserIDs returns every user of the identity store. Names found along
// the way are cached for DisplayName.
func (d *IdentityStoreDirectory) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	names := map[string]string{}
	err := d.api.ListUsersPagesWithContext(ctx, &identitystore.ListUsersInput{
		IdentityStoreId: aws.String(d.identityStoreID),
	}, func(out *identitystore.ListUsersOutput, lastPage bool) bool {
		for _, u := range out.Users {
			id := aws.StringValue(u.UserId)
			if id == "" {
				continue
			}
			ids = append(ids, id)
			names[id] = userName(id, u.UserName, u.DisplayName, u.Emails)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("could not list users of identity store %s: %v", d.identityStoreID, err)
	}

	d.mu.Lock()
	for id, name := range names {
		d.names[id] = name
	}
	d.mu.Unlock()
	return ids, nil
}

// DisplayName resolves a user id to a readable name. Lookup failures are
// logged and fall back to the id itself.
func (d *IdentityStoreDirectory) DisplayName(ctx context.Context, userID string) string {
	d.mu.Lock()
	name, ok := d.names[userID]
	d.mu.Unlock()
	if ok {
		return name
	}

	out, err := d.api.DescribeUserWithContext(ctx, &identitystore.DescribeUserInput{
		IdentityStoreId: aws.String(d.identityStoreID),
		UserId:          aws.String(userID),
	})
	if err != nil {
		d.logger.WithError(err).Debugf("could not describe user %s", userID)
		return userID
	}
	name = userName(userID, out.UserName, out.DisplayName, out.Emails)

	d.mu.Lock()
	d.names[userID] = name
	d.mu.Unlock()
	return name
}

func userName(id string, userName, displayName *string, emails []*identitystore.Email) string {
	if v := aws.StringValue(userName); v != "" {
		return v
	}
	if v := aws.StringValue(displayName); v != "" {
		return v
	}
	if len(emails) > 0 {
		if v := aws.StringValue(emails[0].Value); v != "" {
			return v
		}
	}
	return id
}

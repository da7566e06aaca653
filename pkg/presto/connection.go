package presto

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// NewPrestoConnWithRetry opens a connection and pings it until Presto
// answers, backing off exponentially between attempts.
func NewPrestoConnWithRetry(ctx context.Context, logger log.FieldLogger, connStr string, connBackoff time.Duration, maxRetries int) (*sql.DB, error) {
	db, err := sql.Open("presto", connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid presto connection string: %v", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = connBackoff
	b.Multiplier = 1.25
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)

	ping := func() error {
		return db.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		logger.WithError(err).Debugf("error connecting to presto, backing off %s and trying again", wait)
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("timed out while waiting to connect to presto: %v", err)
	}
	return db, nil
}

package db

import (
	"context"
	"fmt"
	"hash/fnv"
)

// LockKey maps an app key to the advisory lock id used for its deployments.
// FNV-1a keeps it stable across processes without a lock table.
func LockKey(appKey string) int64 {
	h := fnv.New64a()
	h.Write([]byte("deploy:" + appKey))
	return int64(h.Sum64())
}

// AcquireDeployLock takes the per-app advisory lock for the duration of a
// deployment or decommission run. Returns false without blocking when another
// operator already holds it.
func (p *PostgresDB) AcquireDeployLock(ctx context.Context, appKey string) (bool, error) {
	var acquired bool
	err := p.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, LockKey(appKey)).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("error acquiring deploy lock for %q: %w", appKey, err)
	}
	return acquired, nil
}

func (p *PostgresDB) ReleaseDeployLock(ctx context.Context, appKey string) error {
	var released bool
	err := p.db.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, LockKey(appKey)).Scan(&released)
	if err != nil {
		return fmt.Errorf("error releasing deploy lock for %q: %w", appKey, err)
	}
	if !released {
		return fmt.Errorf("deploy lock for %q was not held by this session", appKey)
	}
	return nil
}

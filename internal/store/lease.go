package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/reefsync/internal/queue"
)

// leaseName is the single lease guarding replay.
const leaseName = "flush"

// AcquireLease claims the flush lease for holder until now+ttl.
//
// The claim is a single upsert: it succeeds when no lease exists, when the
// current lease has expired, or when holder already owns it (extension).
func (s *Store) AcquireLease(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	if holder == "" {
		return false, fmt.Errorf("acquire lease: holder is required")
	}

	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	now := s.now()
	expires := now.Add(ttl).UnixMilli()

	result, err := db.ExecContext(ctx, `
		INSERT INTO flush_lease (name, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE flush_lease.holder = excluded.holder
		   OR flush_lease.expires_at <= ?
	`, leaseName, holder, expires, now.UnixMilli())
	if err != nil {
		return false, queue.NewStorageUnavailable("acquire lease", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, queue.NewStorageUnavailable("acquire lease", err)
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if holder owns it.
func (s *Store) ReleaseLease(ctx context.Context, holder string) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx,
		`DELETE FROM flush_lease WHERE name = ? AND holder = ?`, leaseName, holder,
	); err != nil {
		return queue.NewStorageUnavailable("release lease", err)
	}
	return nil
}

func (s *Store) now() time.Time {
	if s.stamper.Clock != nil {
		return s.stamper.Clock()
	}
	return time.Now()
}

package database

import (
	"context"
	"strings"

	"github.com/mbs4/mbs4/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// UpdateVersioned executes an update query guarded by an optimistic version
// check. The caller applies its SET columns; this adds the id and version
// predicates plus the version bump. Zero matched rows means the caller's
// snapshot is stale and the update is rejected with a conflict for resource.
func UpdateVersioned(ctx context.Context, q *bun.UpdateQuery, id, version int64, resource string) error {
	res, err := q.
		Set("version = version + 1").
		Where("id = ?", id).
		Where("version = ?", version).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if rows == 0 {
		return errcodes.FailedUpdate(resource)
	}
	return nil
}

// IsUniqueViolation reports whether err came from a violated UNIQUE
// constraint. Both SQLite drivers include this phrase in the message.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

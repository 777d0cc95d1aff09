package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SnapshotRepo stores world snapshots. Each snapshot row carries the YAML
// payload; world_snapshot_objects indexes its objects for inspection.
type SnapshotRepo struct {
	db   *DB
	keep int
}

// NewSnapshotRepo returns a repo that keeps the newest keep snapshots per
// world. keep <= 0 keeps everything.
func NewSnapshotRepo(db *DB, keep int) *SnapshotRepo {
	return &SnapshotRepo{db: db, keep: keep}
}

// Save writes snap in one transaction and prunes old snapshots of the same
// world. It returns the new snapshot id.
func (r *SnapshotRepo) Save(ctx context.Context, snap *Snapshot) (int64, error) {
	payload, digest, err := Encode(snap)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO world_snapshots (world_index, frame, object_count, digest, payload)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		int16(snap.World), int64(snap.Frame), len(snap.Objects), digest, payload,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("snapshot insert: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"world_snapshot_objects"},
		[]string{"snapshot_id", "ord", "parent_ord", "name", "static", "components"},
		pgx.CopyFromSlice(len(snap.Objects), func(i int) ([]any, error) {
			o := &snap.Objects[i]
			return []any{id, int32(i), int32(o.Parent), o.Name, o.Static, int16(len(o.Components))}, nil
		}),
	); err != nil {
		return 0, fmt.Errorf("snapshot objects: %w", err)
	}

	if r.keep > 0 {
		tag, err := tx.Exec(ctx,
			`DELETE FROM world_snapshots
			 WHERE world_index = $1 AND id NOT IN (
			     SELECT id FROM world_snapshots WHERE world_index = $1 ORDER BY id DESC LIMIT $2)`,
			int16(snap.World), r.keep,
		)
		if err != nil {
			return 0, fmt.Errorf("snapshot prune: %w", err)
		}
		if n := tag.RowsAffected(); n > 0 {
			r.db.log.Debug("pruned snapshots", zap.Uint8("world", snap.World), zap.Int64("count", n))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("snapshot commit: %w", err)
	}
	return id, nil
}

// LoadLatest returns the newest snapshot of world. ErrNoSnapshot is returned
// when none exists and ErrDigestMismatch when the stored payload is corrupt.
func (r *SnapshotRepo) LoadLatest(ctx context.Context, world uint8) (*Snapshot, int64, error) {
	var (
		id              int64
		digest, payload []byte
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, digest, payload FROM world_snapshots
		 WHERE world_index = $1 ORDER BY id DESC LIMIT 1`, int16(world),
	).Scan(&id, &digest, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNoSnapshot
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := Decode(payload, digest)
	if err != nil {
		return nil, id, fmt.Errorf("snapshot %d: %w", id, err)
	}
	return snap, id, nil
}

// Count returns how many snapshots of world are stored.
func (r *SnapshotRepo) Count(ctx context.Context, world uint8) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM world_snapshots WHERE world_index = $1`, int16(world),
	).Scan(&n)
	return n, err
}

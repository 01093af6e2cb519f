// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chunkindex

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL UNIQUE,
	merkle_root     BLOB NOT NULL,
	lineage         TEXT NOT NULL,
	chunk_count     INTEGER NOT NULL,
	original_length INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	container_id INTEGER NOT NULL,
	chunk_index  INTEGER NOT NULL,
	hash         BLOB NOT NULL,
	entropy      REAL NOT NULL,
	PRIMARY KEY (container_id, chunk_index)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS chunks_by_hash ON chunks (hash);
`

// ErrNotFound reports a container name the index does not hold.
var ErrNotFound = errors.New("chunkindex: container not found")

// Config configures an Index.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize is passed to sqlitepool.
	PoolSize int

	// Logger receives index events. Nil discards them.
	Logger *slog.Logger
}

// Index maps chunk hashes to the stored containers that hold them. It
// lives outside the regeneration engine: the engine works from the
// siblings it is given, and the index is how a caller picks them.
type Index struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Location is one chunk of an indexed container.
type Location struct {
	Name    string
	Index   uint32
	Entropy float64
}

// Match is an indexed container that shares chunk hashes with a
// target.
type Match struct {
	Name       string
	MerkleRoot digest.Hash
	Lineage    string

	// Covered holds the target chunk indices whose hash the match
	// also holds.
	Covered *roaring.Bitmap
}

// Shared returns the number of target chunks the match covers.
func (m Match) Shared() uint64 {
	return m.Covered.GetCardinality()
}

// Open opens or creates the index database.
func Open(config Config) (*Index, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Schema:   schema,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("chunkindex: %w", err)
	}
	return &Index{pool: pool, logger: logger}, nil
}

// Close closes the database.
func (x *Index) Close() error {
	return x.pool.Close()
}

// Add records c's chunks under name, replacing anything previously
// recorded under that name.
func (x *Index) Add(ctx context.Context, name string, c *container.Container) error {
	if name == "" {
		return fmt.Errorf("chunkindex: empty container name")
	}
	err := x.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := deleteContainer(conn, name); err != nil {
			return err
		}
		err := sqlitex.Execute(conn,
			`INSERT INTO containers (name, merkle_root, lineage, chunk_count, original_length)
			 VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				name, c.MerkleRoot[:], c.Metadata.Lineage, len(c.Chunks), int64(c.OriginalLength),
			}})
		if err != nil {
			return fmt.Errorf("inserting container: %w", err)
		}
		id := conn.LastInsertRowID()
		for _, entry := range c.Chunks {
			err := sqlitex.Execute(conn,
				`INSERT INTO chunks (container_id, chunk_index, hash, entropy) VALUES (?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{id, int64(entry.Index), entry.Hash[:], entry.Entropy}})
			if err != nil {
				return fmt.Errorf("inserting chunk %d: %w", entry.Index, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("chunkindex: adding %q: %w", name, err)
	}
	x.logger.Debug("container indexed",
		"name", name,
		"chunk_count", len(c.Chunks),
		"merkle_root", digest.Short(c.MerkleRoot),
	)
	return nil
}

// Remove drops name from the index. Removing an absent name returns
// ErrNotFound.
func (x *Index) Remove(ctx context.Context, name string) error {
	return x.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := deleteContainer(conn, name); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil
	})
}

func deleteContainer(conn *sqlite.Conn, name string) error {
	err := sqlitex.Execute(conn,
		`DELETE FROM chunks WHERE container_id IN (SELECT id FROM containers WHERE name = ?)`,
		&sqlitex.ExecOptions{Args: []any{name}})
	if err != nil {
		return fmt.Errorf("deleting chunks of %q: %w", name, err)
	}
	err = sqlitex.Execute(conn, `DELETE FROM containers WHERE name = ?`,
		&sqlitex.ExecOptions{Args: []any{name}})
	if err != nil {
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	return nil
}

// Locate returns every indexed chunk with the given hash, ordered by
// container name and chunk index.
func (x *Index) Locate(ctx context.Context, hash digest.Hash) ([]Location, error) {
	var locations []Location
	err := x.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT containers.name, chunks.chunk_index, chunks.entropy
			 FROM chunks JOIN containers ON containers.id = chunks.container_id
			 WHERE chunks.hash = ?
			 ORDER BY containers.name, chunks.chunk_index`,
			&sqlitex.ExecOptions{
				Args: []any{hash[:]},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					locations = append(locations, Location{
						Name:    stmt.ColumnText(0),
						Index:   uint32(stmt.ColumnInt64(1)),
						Entropy: stmt.ColumnFloat(2),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("chunkindex: locating %s: %w", digest.Short(hash), err)
	}
	return locations, nil
}

// Siblings ranks indexed containers by how many of target's chunks
// they hold, most first, ties broken by name. Containers with target's
// own Merkle root are excluded. A limit of zero or less returns every
// match.
func (x *Index) Siblings(ctx context.Context, target *container.Container, limit int) ([]Match, error) {
	byHash := make(map[digest.Hash][]uint32)
	for _, entry := range target.Chunks {
		byHash[entry.Hash] = append(byHash[entry.Hash], entry.Index)
	}

	matches := make(map[string]*Match)
	err := x.pool.Read(ctx, func(conn *sqlite.Conn) error {
		for hash, indices := range byHash {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := sqlitex.Execute(conn,
				`SELECT DISTINCT containers.name, containers.merkle_root, containers.lineage
				 FROM chunks JOIN containers ON containers.id = chunks.container_id
				 WHERE chunks.hash = ? AND containers.merkle_root != ?`,
				&sqlitex.ExecOptions{
					Args: []any{hash[:], target.MerkleRoot[:]},
					ResultFunc: func(stmt *sqlite.Stmt) error {
						name := stmt.ColumnText(0)
						match, ok := matches[name]
						if !ok {
							match = &Match{Name: name, Lineage: stmt.ColumnText(2), Covered: roaring.New()}
							stmt.ColumnBytes(1, match.MerkleRoot[:])
							matches[name] = match
						}
						match.Covered.AddMany(indices)
						return nil
					},
				})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("chunkindex: finding siblings: %w", err)
	}

	ranked := make([]Match, 0, len(matches))
	for _, match := range matches {
		ranked = append(ranked, *match)
	}
	slices.SortFunc(ranked, func(a, b Match) int {
		return cmp.Or(cmp.Compare(b.Shared(), a.Shared()), cmp.Compare(a.Name, b.Name))
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Cover picks siblings that together hold as many of the missing
// chunks as the index can supply, greedily taking the match that adds
// the most uncovered chunks each round. It returns the chosen matches
// in order and the chunks none of them cover.
func Cover(matches []Match, missing []uint32) ([]Match, []uint32) {
	uncovered := roaring.BitmapOf(missing...)
	remaining := slices.Clone(matches)
	var chosen []Match
	for !uncovered.IsEmpty() && len(remaining) > 0 {
		best, bestGain := -1, uint64(0)
		for i, match := range remaining {
			if gain := match.Covered.AndCardinality(uncovered); gain > bestGain {
				best, bestGain = i, gain
			}
		}
		if best < 0 {
			break
		}
		chosen = append(chosen, remaining[best])
		uncovered.AndNot(remaining[best].Covered)
		remaining = slices.Delete(remaining, best, best+1)
	}
	return chosen, uncovered.ToArray()
}

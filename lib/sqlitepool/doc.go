// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind Sigil's
// local indexes.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies one set
// of pragmas to every connection:
//
//   - journal_mode=WAL, so index lookups run while a writer commits.
//   - synchronous=NORMAL. Commits survive a process crash but not a
//     power failure. Indexes are derived data; the containers are the
//     source of truth and can always be re-indexed.
//   - busy_timeout=5000, so concurrent writers wait instead of failing
//     with SQLITE_BUSY.
//   - cache_size=-8192 (8 MB per connection), mmap_size=256 MB, and
//     temp_store=MEMORY.
//
// [Pool.Read] and [Pool.Write] borrow a connection for the duration of
// a callback; Write wraps it in an immediate transaction. Callers that
// need finer control use [Pool.Take] and [Pool.Put] directly. Queries
// are plain SQL through sqlitex.Execute; there is no query builder.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   filepath.Join(stateDir, "chunks.db"),
//	    Schema: schema,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool

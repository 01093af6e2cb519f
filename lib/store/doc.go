// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store keeps encoded containers somewhere other than the
// caller's working directory.
//
// [Store] is a small name-to-bytes interface with four backends:
// [Local] (a directory, written with temp-file-and-rename so readers
// never see partial containers), [MinIO] (minio-go against any
// S3-compatible server), [S3] (aws-sdk-go-v2), and [Limited], which
// wraps another store and throttles its throughput with a token
// bucket. [Open] builds one from a URL.
//
// Stores are opaque byte holders. They never parse containers;
// integrity is the container's own concern.
package store

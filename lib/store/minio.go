// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/minio/minio-go/v7"
)

// MinIO is a Store backed by a bucket on MinIO or another
// S3-compatible server.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO returns a store over bucket. prefix is prepended to every
// object key.
func NewMinIO(client *minio.Client, bucket, prefix string) *MinIO {
	return &MinIO{client: client, bucket: bucket, prefix: prefix}
}

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Get implements Store.
func (m *MinIO) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	object, err := m.client.GetObject(ctx, m.bucket, joinKey(m.prefix, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrap("getting", name, err)
	}
	defer object.Close()
	data, err := io.ReadAll(object)
	if err != nil {
		return nil, m.wrap("reading", name, err)
	}
	return data, nil
}

// Put implements Store. S3 PUTs are atomic per object.
func (m *MinIO) Put(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	_, err := m.client.PutObject(ctx, m.bucket, joinKey(m.prefix, name),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return m.wrap("putting", name, err)
	}
	return nil
}

// Delete implements Store.
func (m *MinIO) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := m.client.RemoveObject(ctx, m.bucket, joinKey(m.prefix, name), minio.RemoveObjectOptions{})
	if err != nil && !isMinIONotFound(err) {
		return m.wrap("deleting", name, err)
	}
	return nil
}

// List implements Store.
func (m *MinIO) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for object := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    joinKey(m.prefix, prefix),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("store: listing minio://%s: %w", m.bucket, object.Err)
		}
		if name := trimKey(m.prefix, object.Key); name != "" {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *MinIO) wrap(operation, name string, err error) error {
	if isMinIONotFound(err) {
		return fmt.Errorf("%w: minio://%s/%s", ErrNotFound, m.bucket, joinKey(m.prefix, name))
	}
	return fmt.Errorf("store: %s minio://%s/%s: %w", operation, m.bucket, joinKey(m.prefix, name), err)
}

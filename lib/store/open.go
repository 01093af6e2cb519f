// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options supplies what a store URL cannot carry.
type Options struct {
	// AccessKey and SecretKey authenticate to MinIO. S3 uses the
	// standard AWS credential chain instead.
	AccessKey string
	SecretKey string

	// IOLimit, if positive, wraps the store in a Limited of that many
	// bytes per second.
	IOLimit int
}

// Location is a parsed store URL.
type Location struct {
	Scheme string

	// Path is the directory for file stores.
	Path string

	// Endpoint is host:port for MinIO.
	Endpoint string

	Bucket string
	Prefix string

	// Secure selects TLS for MinIO (default true).
	Secure bool

	// Region and S3Endpoint override the AWS defaults for S3.
	Region     string
	S3Endpoint string
}

// ParseLocation parses a store URL:
//
//	/var/lib/sigil or file:///var/lib/sigil
//	minio://host:9000/bucket/prefix?secure=false
//	s3://bucket/prefix?region=eu-west-1&endpoint=https://...
func ParseLocation(raw string) (Location, error) {
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return Location{}, fmt.Errorf("store: empty location")
		}
		return Location{Scheme: "file", Path: raw}, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("store: parsing %q: %w", raw, err)
	}
	query := parsed.Query()
	location := Location{Scheme: parsed.Scheme}

	switch parsed.Scheme {
	case "file":
		if parsed.Host != "" && parsed.Host != "localhost" {
			return Location{}, fmt.Errorf("store: file URL %q names a remote host", raw)
		}
		if parsed.Path == "" {
			return Location{}, fmt.Errorf("store: file URL %q has no path", raw)
		}
		location.Path = parsed.Path
	case "minio":
		if parsed.Host == "" {
			return Location{}, fmt.Errorf("store: minio URL %q has no endpoint", raw)
		}
		location.Endpoint = parsed.Host
		location.Bucket, location.Prefix = splitBucket(parsed.Path)
		location.Secure = true
		if value := query.Get("secure"); value != "" {
			secure, err := strconv.ParseBool(value)
			if err != nil {
				return Location{}, fmt.Errorf("store: minio URL %q: secure=%q: %w", raw, value, err)
			}
			location.Secure = secure
		}
	case "s3":
		location.Bucket = parsed.Host
		_, location.Prefix = splitBucket("/" + parsed.Host + parsed.Path)
		location.Region = query.Get("region")
		location.S3Endpoint = query.Get("endpoint")
	default:
		return Location{}, fmt.Errorf("store: unsupported scheme %q in %q", parsed.Scheme, raw)
	}
	if (location.Scheme == "minio" || location.Scheme == "s3") && location.Bucket == "" {
		return Location{}, fmt.Errorf("store: %q names no bucket", raw)
	}
	return location, nil
}

func splitBucket(urlPath string) (bucket, prefix string) {
	trimmed := strings.Trim(urlPath, "/")
	bucket, prefix, _ = strings.Cut(trimmed, "/")
	return bucket, prefix
}

// Open connects to the store at raw (see ParseLocation).
func Open(ctx context.Context, raw string, options Options) (Store, error) {
	location, err := ParseLocation(raw)
	if err != nil {
		return nil, err
	}

	var opened Store
	switch location.Scheme {
	case "file":
		opened, err = NewLocal(location.Path)
	case "minio":
		var client *minio.Client
		client, err = minio.New(location.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(options.AccessKey, options.SecretKey, ""),
			Secure: location.Secure,
		})
		if err == nil {
			opened = NewMinIO(client, location.Bucket, location.Prefix)
		}
	case "s3":
		var loadOptions []func(*awsconfig.LoadOptions) error
		if location.Region != "" {
			loadOptions = append(loadOptions, awsconfig.WithRegion(location.Region))
		}
		var cfg aws.Config
		cfg, err = awsconfig.LoadDefaultConfig(ctx, loadOptions...)
		if err == nil {
			client := s3.NewFromConfig(cfg, func(o *s3.Options) {
				if location.S3Endpoint != "" {
					o.BaseEndpoint = aws.String(location.S3Endpoint)
					o.UsePathStyle = true
				}
			})
			opened = NewS3(client, location.Bucket, location.Prefix)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", raw, err)
	}

	if options.IOLimit > 0 {
		opened = NewLimited(opened, options.IOLimit)
	}
	return opened, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/entropy"
	"github.com/bureau-foundation/sigil/lib/merkle"
)

// maxFolderDepth bounds Walk's recursion through nested folders.
const maxFolderDepth = 64

// Child is one named member of a folder container.
type Child struct {
	Name      string
	Container *container.Container
}

// Entry is a resolved folder member: the name and the identity of the
// child container it references.
type Entry struct {
	Name   string
	Root   digest.Hash
	Length uint64
}

// Pack builds a folder container over children. Each child becomes
// one ChildRoot chunk holding the child's Merkle root and original
// length; chunks are ordered by name so the same set of children
// always produces the same folder. Names must be non-empty, unique,
// and free of path separators.
func Pack(ctx context.Context, children []Child, options Options) (*container.Container, error) {
	sorted := slices.Clone(children)
	slices.SortFunc(sorted, func(a, b Child) int { return strings.Compare(a.Name, b.Name) })

	names := make([]string, len(sorted))
	payload := make([]byte, 0, len(sorted)*chunk.ChildRefSize)
	for i, child := range sorted {
		if err := validateChildName(child.Name); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].Name == child.Name {
			return nil, fmt.Errorf("duplicate folder member %q", child.Name)
		}
		if child.Container == nil {
			return nil, fmt.Errorf("folder member %q has no container", child.Name)
		}
		names[i] = child.Name
		payload = append(payload, chunk.EncodeChildRef(child.Container.MerkleRoot, child.Container.OriginalLength)...)
	}

	chunks, err := chunk.Split(ctx, payload, chunk.ChildRefSize, options.Workers)
	if err != nil {
		return nil, err
	}
	result := &container.Container{
		Version: container.Version,
		Metadata: container.Metadata{
			Kind:      container.KindFolder,
			Coder:     entropy.None,
			ChunkSize: chunk.ChildRefSize,
			Tier:      options.Tier,
			Children:  names,
			Tags:      options.Tags,
		},
		OriginalLength: uint64(len(payload)),
		Checksum:       container.Checksum(payload),
		Chunks:         chunks,
		MerkleRoot:     merkle.Root(chunk.Hashes(chunks)),
		Payload:        payload,
	}
	if err := attachResidual(result, options); err != nil {
		return nil, err
	}

	options.logger().Debug("folder packed",
		"children", len(names),
		"merkle_root", digest.Short(result.MerkleRoot),
	)
	return result, nil
}

// ErrInvalidName reports a folder member name that is empty, a dot
// entry, or contains a path separator or NUL.
var ErrInvalidName = errors.New("invalid folder member name")

func validateChildName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidName, name)
	}
	return nil
}

// Entries decodes a folder container's members in stored order. The
// member names are checked as Pack checks them: valid, unique, and
// sorted.
func Entries(c *container.Container) ([]Entry, error) {
	if c.Metadata.Kind != container.KindFolder {
		return nil, fmt.Errorf("container is a %s, not a folder", c.Metadata.Kind)
	}
	if len(c.Metadata.Children) != len(c.Chunks) {
		return nil, fmt.Errorf("folder names %d members but has %d chunks", len(c.Metadata.Children), len(c.Chunks))
	}
	for i, name := range c.Metadata.Children {
		if err := validateChildName(name); err != nil {
			return nil, err
		}
		if i > 0 && c.Metadata.Children[i-1] >= name {
			return nil, fmt.Errorf("%w: %q is out of order or repeated", ErrInvalidName, name)
		}
	}
	entries := make([]Entry, len(c.Chunks))
	for i, member := range c.Chunks {
		data, ok := member.Bytes(c.Payload)
		if !ok {
			return nil, fmt.Errorf("folder member %d extends past payload", i)
		}
		ref, err := chunk.Resolve(container.KindFolder.RefKind(), data)
		if err != nil {
			return nil, fmt.Errorf("folder member %d: %w", i, err)
		}
		entries[i] = Entry{Name: c.Metadata.Children[i], Root: ref.Root, Length: ref.Length}
	}
	return entries, nil
}

// Lookup fetches the child container a folder entry references.
type Lookup func(ctx context.Context, entry Entry) (*container.Container, error)

// ErrChildMismatch reports a looked-up child whose Merkle root or
// original length differs from the folder's reference.
var ErrChildMismatch = errors.New("folder member does not match its reference")

// Resolve looks up every member of folder and checks each child
// against the reference recorded for it.
func Resolve(ctx context.Context, folder *container.Container, lookup Lookup) ([]*container.Container, error) {
	entries, err := Entries(folder)
	if err != nil {
		return nil, err
	}
	children := make([]*container.Container, len(entries))
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		child, err := lookup(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", entry.Name, err)
		}
		if child.MerkleRoot != entry.Root || child.OriginalLength != entry.Length {
			return nil, fmt.Errorf("%w: %q has root %s, want %s", ErrChildMismatch,
				entry.Name, digest.Short(child.MerkleRoot), digest.Short(entry.Root))
		}
		children[i] = child
	}
	return children, nil
}

// Walk visits every file container reachable from folder, depth
// first in stored order, with slash-separated paths relative to the
// folder. Nested folders are descended into rather than visited.
func Walk(ctx context.Context, folder *container.Container, lookup Lookup, visit func(name string, file *container.Container) error) error {
	return walk(ctx, folder, "", 0, lookup, visit)
}

func walk(ctx context.Context, folder *container.Container, prefix string, depth int, lookup Lookup, visit func(string, *container.Container) error) error {
	if depth > maxFolderDepth {
		return fmt.Errorf("folder nesting exceeds %d levels at %q", maxFolderDepth, prefix)
	}
	children, err := Resolve(ctx, folder, lookup)
	if err != nil {
		return err
	}
	for i, child := range children {
		name := path.Join(prefix, folder.Metadata.Children[i])
		if child.Metadata.Kind == container.KindFolder {
			if err := walk(ctx, child, name, depth+1, lookup, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(name, child); err != nil {
			return err
		}
	}
	return nil
}

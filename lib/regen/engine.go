// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package regen

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"runtime"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/sigil/lib/chunk"
	"github.com/bureau-foundation/sigil/lib/container"
	"github.com/bureau-foundation/sigil/lib/digest"
	"github.com/bureau-foundation/sigil/lib/merkle"
	"github.com/bureau-foundation/sigil/lib/residual"
	"github.com/bureau-foundation/sigil/lib/sealed"
)

// DefaultMaxPayload is the declared payload length a target may
// always have, however few bytes the target and siblings hold.
const DefaultMaxPayload = 64 << 20

// ErrInsufficientRedundancy is the reason attached to a run that
// ends with chunks no parity stripe or sibling could supply.
var ErrInsufficientRedundancy = errors.New("regen: insufficient redundancy")

// Sibling is a related container offered as a source of chunks.
// Siblings may themselves be damaged; only chunks whose bytes hash to
// the target's recorded hash are ever used.
type Sibling struct {
	Name      string
	Container *container.Container
}

// Progress is one observation of a run, delivered to
// Config.OnProgress.
type Progress struct {
	State State

	// Resolved and Total count the target's chunks. Confidence is
	// Resolved/Total, or 1 for a container with no chunks; it never
	// decreases within a run.
	Resolved   int
	Total      int
	Confidence float64

	// Chunk, Source, and Sibling describe a substitution. Source is
	// SourceNone for state transitions.
	Chunk   uint32
	Source  Source
	Sibling string
}

// Substitution records where a missing chunk was supplied from.
type Substitution struct {
	Index   uint32
	Source  Source
	Sibling string
}

// Range is a span of payload bytes.
type Range struct {
	Offset uint64
	Length uint64
}

// Result is the outcome of a run.
type Result struct {
	// State is Recovered, PartialRecovery, or Failed.
	State State

	// File is the original file. Set only when State is Recovered.
	File []byte

	// Container is the repaired container: the recovered header over
	// the reassembled payload. Set only when State is Recovered.
	Container *container.Container

	// Payload is the reassembled payload. Bytes outside Valid are
	// zero. Nil when State is Failed before scanning.
	Payload []byte

	// Valid lists the payload ranges whose chunks hash-verified,
	// coalesced and ascending.
	Valid []Range

	// Unresolved lists the chunks nothing could supply, ascending.
	Unresolved []uint32

	Substitutions []Substitution
	Confidence    float64

	// Reason explains a PartialRecovery or Failed result.
	Reason error
}

// Config configures an Engine.
type Config struct {
	// Opener unseals the target's seed envelope for the final
	// reverse transform. Nil opens ModeOpen envelopes only.
	Opener sealed.Opener

	// Workers bounds chunk verification and concurrent sibling
	// scans. Zero means GOMAXPROCS.
	Workers int

	// Logger receives run events. Nil discards them.
	Logger *slog.Logger

	// MaxPayload bounds the payload length a target may declare
	// beyond the bytes the target and its siblings hold together.
	// The reassembly buffer is never larger than the greater of the
	// two. Zero means DefaultMaxPayload.
	MaxPayload uint64

	// OnProgress, if set, is called synchronously for every state
	// transition and every substitution. Calls never overlap.
	OnProgress func(Progress)
}

// Engine regenerates damaged containers. An Engine holds no per-run
// state and may run concurrently.
type Engine struct {
	config Config
	logger *slog.Logger
}

// New returns an Engine.
func New(config Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Opener == nil {
		config.Opener = sealed.Keyring{}
	}
	return &Engine{config: config, logger: logger}
}

// Run regenerates the container encoded in target.
//
// Scanning parses target tolerantly and marks every chunk whose bytes
// are absent or fail their hash as missing. Matching fills missing
// chunks from the container's parity residual first, then from
// siblings holding chunks with the same hash; siblings are scanned
// concurrently and candidates for each chunk are tried in order of
// entropy-score distance from the expected chunk. Every substituted
// chunk is re-hashed before it is written. Reassembling verifies the
// complete payload and reverses the coder and transform.
//
// The context is checked between sibling scans. A cancelled run
// returns a PartialRecovery with the work done so far.
//
// The returned error is reserved for a seed envelope the opener
// cannot open; every other outcome is a Result.
func (e *Engine) Run(ctx context.Context, target []byte, siblings []Sibling) (*Result, error) {
	r := &run{engine: e}

	scanned, err := container.Scan(target)
	if err != nil {
		return r.fail(err), nil
	}
	header, err := e.recoverHeader(scanned)
	if err != nil {
		return r.fail(err), nil
	}
	if limit := e.payloadLimit(target, siblings); header.PayloadLength() > limit {
		return r.fail(fmt.Errorf("%w: declared payload of %d bytes exceeds the %d bytes regeneration can allocate",
			container.ErrMalformedHeader, header.PayloadLength(), limit)), nil
	}

	r.lineage = header.Metadata.Lineage
	r.chunks = header.Chunks
	r.buffer = make([]byte, header.PayloadLength())
	copy(r.buffer, scanned.Container.Payload)
	failed, err := chunk.Mismatches(context.WithoutCancel(ctx), r.buffer, r.chunks, e.config.Workers)
	if err != nil {
		return nil, err
	}
	r.missing = roaring.BitmapOf(failed...)
	for _, index := range failed {
		clear(r.buffer[r.chunks[index].Offset:r.chunks[index].End()])
	}
	e.logger.Debug("target scanned",
		"chunk_count", len(r.chunks),
		"missing", len(failed),
		"payload_missing", scanned.PayloadMissing,
	)
	r.report(r.progress(Scanning))

	if !r.missing.IsEmpty() {
		r.report(r.progress(Matching))
		r.applyParity(header.Residual)
		if !r.missing.IsEmpty() && len(siblings) > 0 {
			cancelled := r.matchSiblings(ctx, siblings)
			r.applyParity(header.Residual)
			if cancelled != nil {
				return r.partial(fmt.Errorf("regeneration cancelled with %d of %d chunks unresolved: %w",
					r.missing.GetCardinality(), len(r.chunks), cancelled)), nil
			}
		}
		if !r.missing.IsEmpty() {
			return r.partial(fmt.Errorf("%w: %d of %d chunks unresolved",
				ErrInsufficientRedundancy, r.missing.GetCardinality(), len(r.chunks))), nil
		}
	}

	r.report(r.progress(Reassembling))
	rebuilt := *header
	rebuilt.Payload = r.buffer
	file, err := container.Extract(context.WithoutCancel(ctx), &rebuilt, e.config.Opener)
	if err != nil {
		if errors.Is(err, sealed.ErrSealed) || errors.Is(err, sealed.ErrWrongKey) {
			return nil, err
		}
		// Every chunk verified, so the damage is in the file-level
		// header fields and the output cannot be vouched for.
		return r.fail(fmt.Errorf("reassembled payload did not restore: %w", err)), nil
	}

	result := r.result(Recovered)
	result.File = file
	result.Container = &rebuilt
	r.finish(result)
	return result, nil
}

// recoverHeader returns the container header regeneration works
// against. A Seal-tier backup that is intact and self-consistent
// replaces the header's metadata, chunk map, and Merkle root whenever
// they differ from it. Without one, an unreadable metadata section or
// chunk map, or a chunk map that does not produce the Merkle root,
// makes the container unrecoverable. So does a chunk map whose ranges
// are not the fixed-size boundaries of its chunk size.
func (e *Engine) recoverHeader(scanned *container.Scanned) (*container.Container, error) {
	header := *scanned.Container

	if backup := usableBackup(scanned); backup != nil {
		damaged := !bytes.Equal(scanned.MetadataBytes, backup.Metadata) ||
			!bytes.Equal(scanned.ChunkMapBytes, backup.ChunkMap) ||
			header.MerkleRoot != backup.MerkleRoot
		if damaged {
			restored, err := fromBackup(header, backup)
			if err != nil {
				return nil, err
			}
			e.logger.Info("header restored from seal backup",
				"merkle_root", digest.Short(restored.MerkleRoot),
				"chunk_count", len(restored.Chunks),
			)
			header = restored
		}
	} else {
		switch {
		case scanned.MetadataErr != nil:
			return nil, fmt.Errorf("%w: %w", container.ErrMalformedHeader, scanned.MetadataErr)
		case scanned.ChunkMapErr != nil:
			return nil, fmt.Errorf("%w: %w", container.ErrMalformedHeader, scanned.ChunkMapErr)
		case merkle.Root(chunk.Hashes(header.Chunks)) != header.MerkleRoot:
			return nil, container.ErrMerkleMismatch
		}
	}

	if err := chunk.CheckBoundaries(header.Chunks, header.PayloadLength(), header.Metadata.ChunkSize); err != nil {
		return nil, fmt.Errorf("%w: %w", container.ErrMalformedHeader, err)
	}

	if header.Residual != nil {
		if err := header.Residual.Validate(header.Chunks, header.Metadata.ChunkSize); err != nil {
			e.logger.Warn("residual ignored", "error", err)
			header.Residual = nil
		}
	}
	return &header, nil
}

// payloadLimit is the largest payload a run over target and siblings
// may allocate.
func (e *Engine) payloadLimit(target []byte, siblings []Sibling) uint64 {
	held := uint64(len(target))
	for _, sibling := range siblings {
		if sibling.Container != nil {
			held += uint64(len(sibling.Container.Payload))
		}
	}
	allowance := e.config.MaxPayload
	if allowance == 0 {
		allowance = DefaultMaxPayload
	}
	return max(held, allowance)
}

func usableBackup(scanned *container.Scanned) *residual.Backup {
	if scanned.Container.Residual == nil {
		return nil
	}
	backup := scanned.Container.Residual.Backup
	if backup == nil || !backup.Intact() {
		return nil
	}
	return backup
}

func fromBackup(header container.Container, backup *residual.Backup) (container.Container, error) {
	metadata, err := container.DecodeMetadata(backup.Metadata)
	if err != nil {
		return container.Container{}, fmt.Errorf("%w: seal backup: %w", container.ErrMalformedHeader, err)
	}
	chunks, err := decodeBackupChunkMap(backup.ChunkMap)
	if err != nil {
		return container.Container{}, fmt.Errorf("%w: seal backup: %w", container.ErrMalformedHeader, err)
	}
	if merkle.Root(chunk.Hashes(chunks)) != backup.MerkleRoot {
		return container.Container{}, fmt.Errorf("seal backup: %w", container.ErrMerkleMismatch)
	}
	header.Metadata = metadata
	header.Chunks = chunks
	header.MerkleRoot = backup.MerkleRoot
	return header, nil
}

// decodeBackupChunkMap decodes a chunk map against the payload length
// its own entries imply, since the header's payload length may be the
// damaged field.
func decodeBackupChunkMap(data []byte) ([]chunk.Chunk, error) {
	chunks, err := container.DecodeChunkMap(data, 0)
	if err == nil || len(chunks) == 0 {
		return chunks, err
	}
	return container.DecodeChunkMap(data, chunks[len(chunks)-1].End())
}

// run is the mutable state of one Run call.
type run struct {
	engine  *Engine
	lineage string
	chunks  []chunk.Chunk

	// mutex serializes writes to buffer and missing, and progress
	// delivery.
	mutex         sync.Mutex
	buffer        []byte
	missing       *roaring.Bitmap
	substitutions []Substitution
}

// candidate is a sibling chunk whose recorded hash matches a missing
// chunk. Its bytes are unverified until substitute re-hashes them.
type candidate struct {
	data     []byte
	distance float64
	sibling  int
	position uint32
	name     string
}

func (r *run) applyParity(parity *residual.Residual) {
	if parity == nil || r.missing.IsEmpty() {
		return
	}
	recovered := parity.Recover(r.buffer, r.chunks, r.missing.ToArray())
	for _, index := range slices.Sorted(maps.Keys(recovered)) {
		r.substitute(index, recovered[index], SourceParity, "")
	}
}

// matchSiblings scans siblings concurrently for chunks with the hash
// of a missing chunk, then substitutes the closest verified candidate
// for each. It returns the context's error if the run was cancelled
// before every sibling was scanned.
func (r *run) matchSiblings(ctx context.Context, siblings []Sibling) error {
	wanted := make(map[digest.Hash][]uint32)
	r.missing.Iterate(func(index uint32) bool {
		hash := r.chunks[index].Hash
		wanted[hash] = append(wanted[hash], index)
		return true
	})

	var candidatesMutex sync.Mutex
	candidates := make(map[uint32][]candidate)

	var group errgroup.Group
	group.SetLimit(workerCount(r.engine.config.Workers))
	for i, sibling := range siblings {
		if sibling.Container == nil {
			continue
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if sibling.Container.Metadata.Lineage != r.lineage {
				r.engine.logger.Debug("sibling from another lineage",
					"sibling", sibling.Name,
					"lineage", sibling.Container.Metadata.Lineage,
				)
			}
			found := r.scanSibling(i, sibling, wanted)
			candidatesMutex.Lock()
			for index, list := range found {
				candidates[index] = append(candidates[index], list...)
			}
			candidatesMutex.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	for _, index := range slices.Sorted(maps.Keys(candidates)) {
		list := candidates[index]
		slices.SortFunc(list, func(a, b candidate) int {
			return cmp.Or(
				cmp.Compare(a.distance, b.distance),
				cmp.Compare(a.sibling, b.sibling),
				cmp.Compare(a.position, b.position),
			)
		})
		for _, option := range list {
			if r.substitute(index, option.data, SourceSibling, option.name) {
				break
			}
		}
	}
	return ctx.Err()
}

// scanSibling collects the sibling's chunks whose recorded hash is
// wanted. It only reads the sibling.
func (r *run) scanSibling(siblingIndex int, sibling Sibling, wanted map[digest.Hash][]uint32) map[uint32][]candidate {
	found := make(map[uint32][]candidate)
	for _, offered := range sibling.Container.Chunks {
		indices, ok := wanted[offered.Hash]
		if !ok {
			continue
		}
		data, ok := offered.Bytes(sibling.Container.Payload)
		if !ok {
			continue
		}
		for _, index := range indices {
			found[index] = append(found[index], candidate{
				data:     data,
				distance: math.Abs(offered.Entropy - r.chunks[index].Entropy),
				sibling:  siblingIndex,
				position: offered.Index,
				name:     sibling.Name,
			})
		}
	}
	return found
}

// substitute writes data as chunk index if the chunk is still missing
// and data hashes to the chunk's recorded hash.
func (r *run) substitute(index uint32, data []byte, source Source, sibling string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.missing.Contains(index) {
		return false
	}
	target := r.chunks[index]
	if uint32(len(data)) != target.Length || digest.HashChunk(data) != target.Hash {
		return false
	}
	copy(r.buffer[target.Offset:target.End()], data)
	r.missing.Remove(index)
	r.substitutions = append(r.substitutions, Substitution{Index: index, Source: source, Sibling: sibling})

	r.engine.logger.Debug("chunk substituted",
		"chunk", index,
		"source", source.String(),
		"sibling", sibling,
	)
	event := r.progressLocked(Substituting)
	event.Chunk = index
	event.Source = source
	event.Sibling = sibling
	r.deliver(event)
	return true
}

func (r *run) progress(state State) Progress {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.progressLocked(state)
}

func (r *run) progressLocked(state State) Progress {
	total := len(r.chunks)
	resolved := total - int(r.missing.GetCardinality())
	return Progress{
		State:      state,
		Resolved:   resolved,
		Total:      total,
		Confidence: confidence(resolved, total),
	}
}

func (r *run) report(event Progress) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.deliver(event)
}

func (r *run) deliver(event Progress) {
	if r.engine.config.OnProgress != nil {
		r.engine.config.OnProgress(event)
	}
}

func (r *run) result(state State) *Result {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	total := len(r.chunks)
	resolved := total - int(r.missing.GetCardinality())
	result := &Result{
		State:         state,
		Payload:       r.buffer,
		Unresolved:    r.missing.ToArray(),
		Substitutions: r.substitutions,
		Confidence:    confidence(resolved, total),
	}
	for _, c := range r.chunks {
		if r.missing.Contains(c.Index) {
			continue
		}
		if n := len(result.Valid); n > 0 && result.Valid[n-1].Offset+result.Valid[n-1].Length == c.Offset {
			result.Valid[n-1].Length += uint64(c.Length)
			continue
		}
		result.Valid = append(result.Valid, Range{Offset: c.Offset, Length: uint64(c.Length)})
	}
	return result
}

func (r *run) partial(reason error) *Result {
	result := r.result(PartialRecovery)
	result.Reason = reason
	r.finish(result)
	return result
}

func (r *run) fail(reason error) *Result {
	var result *Result
	if r.missing == nil {
		result = &Result{State: Failed}
	} else {
		result = r.result(Failed)
		result.Payload = nil
		result.Valid = nil
	}
	result.Reason = reason
	r.finish(result)
	return result
}

func (r *run) finish(result *Result) {
	if r.missing != nil {
		r.report(r.progress(result.State))
	} else {
		r.report(Progress{State: result.State})
	}
	r.engine.logger.Info("regeneration finished",
		"state", result.State.String(),
		"confidence", result.Confidence,
		"unresolved", len(result.Unresolved),
		"substituted", len(result.Substitutions),
	)
}

func confidence(resolved, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(resolved) / float64(total)
}

func workerCount(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ V /| |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package checkpoint

import "errors"

// Error kinds surfaced to callers of the checkpoint and warmup subsystems.
var (
	// ErrOutOfRange is returned when a cursor cannot be registered at the
	// requested seqno; the caller must fall back to a disk backfill.
	ErrOutOfRange = errors.New("checkpoint: cursor seqno out of range")

	// ErrSeqnoRegression indicates a monotonicity invariant was violated.
	// Fatal: implies a bug upstream of the checkpoint layer.
	ErrSeqnoRegression = errors.New("checkpoint: seqno regression")

	// ErrDuplicateItem names the case where a prepare for the key already
	// exists in the checkpoint and the new item cannot dedup against it.
	// Checkpoint.Append does not return it: it reports that case as a
	// FailureDuplicateItem status with a nil error, and the caller rolls to
	// a new checkpoint.
	ErrDuplicateItem = errors.New("checkpoint: duplicate item cannot be deduplicated")

	// ErrOutOfMemory is transient; the writer should retry after a delay.
	ErrOutOfMemory = errors.New("checkpoint: out of memory")

	// ErrNotMyVBucket indicates the vBucket was removed during the call.
	ErrNotMyVBucket = errors.New("checkpoint: not my vbucket")

	// ErrCorruption indicates a disk read invariant was broken.
	ErrCorruption = errors.New("checkpoint: corruption detected")

	// ErrShutdown names forced termination. Pending cookies are not handed
	// this error: warmup resolves them with a CookieDisconnect outcome.
	ErrShutdown = errors.New("checkpoint: shutdown")

	// ErrCheckpointClosed is returned by Append on a Closed checkpoint.
	ErrCheckpointClosed = errors.New("checkpoint: append on closed checkpoint")

	// ErrCannotExpel is returned when fewer than two mutations lie between
	// checkpoint_start and the requested expel point, inclusive.
	ErrCannotExpel = errors.New("checkpoint: not enough mutations remain to expel")

	// ErrCursorNotFound is returned by manager lookups for an unknown
	// cursor name.
	ErrCursorNotFound = errors.New("checkpoint: cursor not found")
)

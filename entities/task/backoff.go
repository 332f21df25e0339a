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

package task

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Retryable is the operation RetryWithBackoff repeats; whether an error it
// returns is the transient one worth retrying (spec.md section 7:
// "OutOfMemory — transient; writer retries after a delay") is decided by
// RetryWithBackoff's isRetryable predicate.
type Retryable func() error

// RetryWithBackoff retries op until it succeeds, ctx is done, or op returns
// an error isRetryable says is not transient, using an exponential backoff
// with jitter between attempts. Built for the writer's retry-on-OutOfMemory
// path (spec.md section 7); not a general-purpose retry loop for every error
// kind in the taxonomy.
func RetryWithBackoff(ctx context.Context, isRetryable func(error) bool, op Retryable) error {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

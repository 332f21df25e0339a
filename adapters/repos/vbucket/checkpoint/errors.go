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

import (
	"errors"
	"fmt"
)

// ErrCannotDropPersistenceCursor is returned by DropCursor when asked to
// drop the distinguished persistence cursor, which MemRecoveryTask must
// never target (spec.md glossary: "Persistence cursor").
var ErrCannotDropPersistenceCursor = errors.New("checkpoint: cannot drop the persistence cursor")

// ErrCursorAlreadyRegistered builds the error RegisterCursor returns when
// name is already in use within this manager.
func ErrCursorAlreadyRegistered(name string) error {
	return fmt.Errorf("checkpoint: cursor %q already registered", name)
}

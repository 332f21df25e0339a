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

package main

import (
	"context"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/checkpoint"
	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/nullstore"
	"github.com/weaviate/kvcheckpoint/adapters/repos/vbucket/warmup"
	"github.com/weaviate/kvcheckpoint/usecases/kvconfig"
)

// Options are the command line flags kvwarmupd accepts.
type Options struct {
	NumShards int `long:"num-shards" description:"warmup shard fan-out width" default:"4"`
}

// main wires a CheckpointDestroyer, the warmup Context, and a
// StateMachine together and runs one warmup pass, mirroring cmd/weaviate's
// own thin flag-parse-then-wire shape. It runs against nullstore (no
// persisted vBuckets) until a real disk engine is linked in in place of it.
func main() {
	var opts Options
	log := logrus.WithField("app", "kvwarmupd").Logger

	if _, err := flags.Parse(&opts); err != nil {
		log.Fatal("failed to parse command line args: ", err)
	}

	cfg := kvconfig.DefaultConfig()
	cfg.NumShards = opts.NumShards

	destroyer := checkpoint.NewDestroyer(log, cfg.DestroyerDrainInterval)
	destroyer.Start()
	defer destroyer.Stop()

	wctx := warmup.NewContext(nullstore.New(), cfg, destroyer, log)
	sm := warmup.NewStateMachine(wctx, log)

	if err := sm.Run(context.Background()); err != nil {
		log.WithError(err).Fatal("warmup failed")
	}

	log.WithField("state", sm.State().String()).Info("warmup complete")
}

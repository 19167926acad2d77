// Package producer defines the contract every external backend wrapper
// (completion model, image model, video model, TTS engine, media tool)
// implements, together with the shared failure taxonomy.
package producer

import "context"

// Producer is the minimal capability surface of an external backend. Probe is
// a cheap connectivity or installation check; implementations cache the result
// since it is consulted once per scene in the worst case.
type Producer interface {
	Name() string
	Probe(ctx context.Context) bool
}

// Loadable is implemented by producers that hold a large model resident in
// accelerator memory. The orchestrator sequences Load/Unload so that the image
// and video models never coexist under constrained memory.
type Loadable interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
}

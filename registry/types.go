// Package registry manages the ordered set of sidebar sites.
//
// The working set lives in memory behind a single mutex. Every mutation
// rewrites the full ordered sequence through the internal store, so the
// on-disk order always matches what callers observe. Storage write
// failures degrade to in-memory operation (logged, never surfaced): the
// sidebar keeps working when the disk does not.
package registry

import "github.com/hazyhaar/quai/registry/internal/store"

// Site is a single sidebar entry. Position mirrors the slice index after
// every mutation.
type Site = store.Site

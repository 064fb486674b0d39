// Package engine is the mutation path of the stream.
//
// It wires the projector, the access recalculator, the subscription
// service and the composer over one store, and runs the hooks of every
// business-entity mutation in order: persist, project notes, follow,
// recalculate note access, commit.
//
// Mutations run synchronously through Apply or the typed methods. Callers
// that want a single writer can Enqueue mutations instead and drive them
// from one goroutine with Run; failures there are logged and processing
// continues with the next mutation.
package engine

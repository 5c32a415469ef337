// Package backlog abstracts the durable, append-only record store that is
// the system of record for the canvas. Records are JSON documents
// addressed by the string id they carry; committing the same id again
// appends a new version, and Query returns the latest one.
package backlog

import "context"

type Log interface {
	Commit(ctx context.Context, id string, doc []byte) error
	Query(ctx context.Context, id string) ([]byte, bool, error)
}

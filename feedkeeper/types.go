// CLAUDE:SUMMARY Re-exports store and pipeline types (Source, Record, Enrichment, reports) as the feedkeeper public API.
// Package feedkeeper is the dedup, idempotency and retry-state engine behind
// RSS, queue, fulltext and abstract ingestion.
//
// Everything lives in one local SQLite file. Items from feeds or JSONL
// queues get stable identity keys, are classified new / unchanged / updated
// by content hash and written idempotently; records are then enriched with
// fulltext or abstracts under a bounded retry state machine.
package feedkeeper

import (
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/pipeline"
	"github.com/hazyhaar/feedkeeper/feedkeeper/internal/store"
)

// Re-export store and run types for the public API.
type (
	Source        = store.Source
	Record        = store.Record
	Enrichment    = store.Enrichment
	WindowRow     = store.WindowRow
	FetchLogEntry = store.FetchLogEntry
	Stats         = store.Stats
	RunReport     = pipeline.RunReport
	SourceReport  = pipeline.SourceReport
	EnrichReport  = pipeline.EnrichReport
	Failure       = pipeline.Failure
)

// Source kinds and enrichment statuses.
const (
	KindFeed  = store.KindFeed
	KindQueue = store.KindQueue

	StatusNew    = store.StatusNew
	StatusReady  = store.StatusReady
	StatusFailed = store.StatusFailed
)

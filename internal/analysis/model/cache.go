package model

import (
	"context"
	"time"
)

// InputType identifies how the menu reached the engine.
type InputType string

const (
	InputText  InputType = "text"
	InputURL   InputType = "url"
	InputImage InputType = "image"
)

// CacheMeta records where a cached analysis came from.
type CacheMeta struct {
	InputType InputType `json:"inputType"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// CacheEntry is a stored analysis keyed by its fingerprint.
type CacheEntry struct {
	Key       string           `json:"key"`
	Response  AnalysisResponse `json:"response"`
	Meta      CacheMeta        `json:"meta"`
	Timestamp time.Time        `json:"timestamp"`
}

type ResultCache interface {
	// Get returns the entry for fingerprint, or nil when absent.
	Get(ctx context.Context, fingerprint string) (*CacheEntry, error)

	// Put stores response under fingerprint, replacing any previous entry.
	Put(ctx context.Context, fingerprint string, response *AnalysisResponse, meta CacheMeta) error

	// List returns every entry, newest first.
	List(ctx context.Context) ([]*CacheEntry, error)

	// Prune removes entries older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Package ingestion fetches new chapters from every configured source and
// turns them into Elements ready for delivery.
package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"comik/internal/cache"
	"comik/internal/mark"
)

// Element is one chapter ready for delivery. Images is empty in learn mode.
type Element struct {
	SourceTag   string
	ComicID     string
	ComicName   string
	ChapterID   string
	ChapterName string
	Images      []string
}

// Key returns the mark key of the chapter.
func (e Element) Key() mark.Key {
	return mark.Key{Source: e.SourceTag, ComicID: e.ComicID, ChapterID: e.ChapterID}
}

// Source is implemented by each external comic provider.
//
// raw is the provider's own subscription list, straight from the config
// file. A provider that cannot decode it logs the problem and returns no
// elements; it never fails the run.
type Source interface {
	Tag() string
	Fetch(ctx context.Context, learn bool, raw json.RawMessage, env *Env) []Element
}

// Env carries the run-wide collaborators a source needs.
type Env struct {
	Logger *slog.Logger
	Marks  mark.Store
	Cache  *cache.Cache
}

// IsMarked checks the mark store. A lookup failure is logged and treated as
// unmarked so the chapter is processed rather than silently lost.
func (e *Env) IsMarked(ctx context.Context, key mark.Key) bool {
	marked, err := e.Marks.IsMarked(ctx, key)
	if err != nil {
		e.Logger.Error("[Fetch] failed to check mark",
			slog.String("key", key.String()),
			slog.Any("error", err))
		return false
	}
	return marked
}

// Registry maps source tags to sources.
type Registry struct {
	sources map[string]Source
}

// NewRegistry returns a registry holding sources.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any source with the same tag.
func (r *Registry) Register(s Source) {
	r.sources[s.Tag()] = s
}

// Lookup returns the source registered under tag.
func (r *Registry) Lookup(tag string) (Source, bool) {
	s, ok := r.sources[tag]
	return s, ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.sources))
	for tag := range r.sources {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
)

// Orchestrator fans a run out to every configured source and flattens what
// comes back.
type Orchestrator struct {
	registry *Registry
	env      *Env
}

// NewOrchestrator creates an orchestrator over registry.
func NewOrchestrator(registry *Registry, env *Env) *Orchestrator {
	return &Orchestrator{registry: registry, env: env}
}

// Fetch runs every source named in sources concurrently and returns the
// union of their elements. Tags without a registered source are skipped so
// that newer config files keep working with older binaries.
func (o *Orchestrator) Fetch(ctx context.Context, learn bool, sources map[string]json.RawMessage) []Element {
	tags := make([]string, 0, len(sources))
	for tag := range sources {
		if _, ok := o.registry.Lookup(tag); !ok {
			o.env.Logger.Warn("[Fetch] skip unknown source",
				slog.String("source", tag),
				slog.Any("known", o.registry.Tags()))
			continue
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	elements := Gather(ctx, len(tags), func(ctx context.Context, i int) []Element {
		source, _ := o.registry.Lookup(tags[i])
		return source.Fetch(ctx, learn, sources[tags[i]], o.env)
	})

	o.env.Logger.Info("[Fetch] collected chapters",
		slog.Int("sources", len(tags)),
		slog.Int("chapters", len(elements)))
	return elements
}

package ai

import (
	"fmt"
	"strings"
	"time"
)

type ProviderSpec struct {
	Name  string
	Model string
	Args  interface{}
}

type EmbedOptions struct {
	Providers      []ProviderSpec
	Attempts       int
	RetryDelay     time.Duration
	Timeout        time.Duration
	RateLimitQPS   float64
	RateLimitBurst int
}

// BuildEmbedder assembles the configured providers into one embedder. Each
// provider is rate limited, bounded per attempt and retried on its own before
// the next provider in the list is tried.
func BuildEmbedder(opts EmbedOptions) (IEmbedder, error) {
	if len(opts.Providers) == 0 {
		return nil, fmt.Errorf("no embed provider configured")
	}
	items := make([]EmbedderEntry, 0, len(opts.Providers))
	for _, spec := range opts.Providers {
		p, err := NewEmbedProvider(spec.Name, spec.Args)
		if err != nil {
			return nil, fmt.Errorf("create embed provider %s: %w", spec.Name, err)
		}
		model := strings.TrimSpace(spec.Model)
		if model == "" && p.Name() == "huggingface" {
			model = DefaultHuggingFaceModel
		}
		if model == "" {
			return nil, fmt.Errorf("embed provider %s requires a model", spec.Name)
		}
		var e IEmbedder = NewEmbedder(p, model)
		e = WrapTimeoutToEmbedder(e, opts.Timeout)
		e = WrapRateLimitToEmbedder(e, opts.RateLimitQPS, opts.RateLimitBurst)
		e = WrapRetryToEmbedder(e, opts.Attempts, opts.RetryDelay)
		items = append(items, EmbedderEntry{Name: p.Name() + ":" + model, Embedder: e})
	}
	return NewGroupEmbedder(items), nil
}

package llm

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/recalldev/recall/internal/adapters/circuitbreaker"
	"github.com/recalldev/recall/internal/adapters/metrics"
	"github.com/recalldev/recall/internal/config"
	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/ports"
)

// Model aliases callers may use instead of concrete model names
const (
	AliasEmbed  = "embed"
	AliasRerank = "rerank"
	AliasLight  = "light"
	AliasHeavy  = "heavy"
)

// Gateway routes model calls across the configured providers. Each
// model name maps to an ordered provider chain; calls fall through the
// chain on retryable failures and open breakers.
type Gateway struct {
	clients []*Client
	serves  map[string][]*Client

	embedModel  string
	rerankModel string
	lightModel  string
	heavyModel  string
	dimension   int

	usage *UsageTracker
}

func NewGateway(cfg config.ModelsConfig, dimension, perProviderInflight int) *Gateway {
	g := &Gateway{
		serves:      make(map[string][]*Client),
		embedModel:  cfg.Embed,
		rerankModel: cfg.Rerank,
		lightModel:  cfg.Light,
		heavyModel:  cfg.Heavy,
		dimension:   dimension,
		usage:       NewUsageTracker(providerPrices(cfg.Providers)),
	}
	for _, p := range cfg.Providers {
		client := NewClient(p.Name, p.BaseURL, p.APIKey, perProviderInflight)
		g.clients = append(g.clients, client)
		for _, model := range p.Models {
			g.serves[model] = append(g.serves[model], client)
		}
	}
	return g
}

// providerPrices flattens per-provider price tables into one per-model
// table. Later providers win on conflicts.
func providerPrices(providers []config.ProviderConfig) map[string]config.ModelPrice {
	out := make(map[string]config.ModelPrice)
	for _, p := range providers {
		for model, price := range p.Prices {
			out[model] = price
		}
	}
	return out
}

// Usage returns accumulated per-model usage totals.
func (g *Gateway) Usage() map[string]UsageTotals {
	return g.usage.Snapshot()
}

func (g *Gateway) Dimension() int {
	return g.dimension
}

// ResolveModel maps an alias to its configured model name. Concrete
// model names pass through unchanged.
func (g *Gateway) ResolveModel(name string) string {
	switch name {
	case AliasEmbed:
		return g.embedModel
	case AliasRerank:
		return g.rerankModel
	case AliasLight, "":
		return g.lightModel
	case AliasHeavy:
		return g.heavyModel
	}
	return name
}

func (g *Gateway) Healthy(ctx context.Context) error {
	if len(g.clients) == 0 {
		return domain.NewDomainError(domain.ErrModelNotConfigured, "no providers configured")
	}
	for _, c := range g.clients {
		if c.Available() {
			return nil
		}
	}
	return domain.NewDomainError(domain.ErrAllProvidersFailed, "all provider circuit breakers are open")
}

func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var vectors [][]float32
	err := g.fallback(ctx, "embed", g.embedModel, func(c *Client) error {
		start := time.Now()
		vecs, usage, err := c.Embed(ctx, g.embedModel, texts)
		g.observe("embed", c.Name(), g.embedModel, start, usage, err)
		if err != nil {
			return err
		}
		for _, v := range vecs {
			if len(v) != g.dimension {
				return domain.NewDomainError(domain.ErrDimensionMismatch,
					"provider "+c.Name()+" returned wrong embedding dimension")
			}
		}
		vectors = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (g *Gateway) Rerank(ctx context.Context, query string, documents []string) ([]float32, error) {
	if len(documents) == 0 {
		return []float32{}, nil
	}

	var scores []float32
	err := g.fallback(ctx, "rerank", g.rerankModel, func(c *Client) error {
		start := time.Now()
		s, usage, err := c.Rerank(ctx, g.rerankModel, query, documents)
		g.observe("rerank", c.Name(), g.rerankModel, start, usage, err)
		if err != nil {
			return err
		}
		scores = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

func (g *Gateway) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResult, error) {
	model := g.ResolveModel(req.Model)

	var result *ports.CompletionResult
	err := g.fallback(ctx, "complete", model, func(c *Client) error {
		start := time.Now()
		text, usage, err := c.Chat(ctx, model, req.System, req.Prompt, req.MaxTokens, req.Temperature, req.JSONMode)
		g.observe("complete", c.Name(), model, start, usage, err)
		if err != nil {
			return err
		}
		result = &ports.CompletionResult{
			Text:         text,
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			Provider:     c.Name(),
			Model:        model,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fallback runs fn against each provider serving model, in configured
// order, until one succeeds or the failure is not worth retrying
// elsewhere.
func (g *Gateway) fallback(ctx context.Context, operation, model string, fn func(*Client) error) error {
	chain := g.serves[model]
	if len(chain) == 0 {
		return domain.NewDomainError(domain.ErrModelNotConfigured, "no provider serves model "+model)
	}

	attempts := make([]error, 0, len(chain))
	for _, client := range chain {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(client)
		if err == nil {
			return nil
		}
		attempts = append(attempts, err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// Dimension mismatches and other domain errors will not heal
		// by switching providers serving the same model chain, but a
		// different deployment may be configured correctly.
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			log.Printf("[Gateway] provider %s circuit open for %s, falling back", client.Name(), operation)
			continue
		}
		var perr *ProviderError
		if errors.As(err, &perr) && !perr.Retryable && perr.Status >= 400 && perr.Status < 500 {
			// A definitive client error (bad request, auth) repeats on
			// every provider with the same payload.
			return err
		}
		log.Printf("[Gateway] provider %s failed %s: %v, falling back", client.Name(), operation, err)
	}

	return &FallbackError{Operation: operation, Attempts: attempts}
}

func (g *Gateway) observe(operation, provider, model string, start time.Time, usage usageBlock, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.GatewayCallsTotal.WithLabelValues(operation, provider, outcome).Inc()
	metrics.GatewayCallDuration.WithLabelValues(operation, provider).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.GatewayTokensTotal.WithLabelValues(operation, model, "input").Add(float64(usage.PromptTokens))
		metrics.GatewayTokensTotal.WithLabelValues(operation, model, "output").Add(float64(usage.CompletionTokens))
		cost := g.usage.Record(model, usage.PromptTokens, usage.CompletionTokens)
		metrics.GatewayCostTotal.WithLabelValues(provider, model).Add(cost)
	}
}

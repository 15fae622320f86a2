// Package embed turns text into vectors for semantic search. OpenAI is
// the primary provider; a local Ollama instance takes over when OpenAI
// is unconfigured or failing.
package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/cserp440/couch-context/internal/config"
)

// OpenAI rejects inputs past its token window; characters are a safe
// proxy at four per token.
const maxEmbedChars = 8191 * 4

const openAIBatchSize = 100

type embedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Provider embeds text, falling back from OpenAI to Ollama per call.
type Provider struct {
	primary  embedFunc
	fallback embedFunc
	log      *zap.Logger
}

// NewProvider wires providers from settings. Without an OpenAI key only
// Ollama is used.
func NewProvider(cfg *config.Settings, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provider{log: log}
	ollama := newOllamaClient(cfg.OllamaHost, cfg.OllamaEmbeddingModel)
	if cfg.UseOpenAI() {
		client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
		model := cfg.OpenAIEmbeddingModel
		p.primary = func(ctx context.Context, texts []string) ([][]float32, error) {
			return embedOpenAI(ctx, &client, model, texts)
		}
		p.fallback = ollama.embed
	} else {
		p.primary = ollama.embed
	}
	return p
}

// Embed returns one vector per input text, preserving order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.primary(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if p.fallback == nil {
		return nil, err
	}
	p.log.Warn("primary embedding failed, using fallback", zap.Error(err))
	vecs, ferr := p.fallback(ctx, texts)
	if ferr != nil {
		return nil, fmt.Errorf("embed: primary: %v; fallback: %w", err, ferr)
	}
	return vecs, nil
}

// EmbedOne embeds a single text.
func (p *Provider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return vecs[0], nil
}

func embedOpenAI(ctx context.Context, client *openai.Client, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIBatchSize {
		end := start + openAIBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := make([]string, 0, end-start)
		for _, text := range texts[start:end] {
			batch = append(batch, truncateChars(text, maxEmbedChars))
		}
		resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return nil, fmt.Errorf("embed: openai: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embed: openai returned %d vectors for %d inputs", len(resp.Data), len(batch))
		}
		for _, item := range resp.Data {
			vec := make([]float32, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float32(v)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

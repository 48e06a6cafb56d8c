package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"
	DefaultHuggingFaceModel   = "sentence-transformers/all-MiniLM-L6-v2"
)

type huggingFaceConfig struct {
	credentialConfig
	BaseURL string `json:"base_url"`
}

type huggingFaceRequest struct {
	Inputs  string             `json:"inputs"`
	Options huggingFaceOptions `json:"options"`
}

type huggingFaceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type huggingFaceError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

type huggingFaceEmbedProvider struct {
	cred    CredentialProvider
	baseURL string
	client  *http.Client
}

// NewHuggingFaceEmbedProvider calls the hosted feature-extraction pipeline.
// cred may be nil for anonymous access.
func NewHuggingFaceEmbedProvider(baseURL string, cred CredentialProvider, client *http.Client) IEmbedProvider {
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &huggingFaceEmbedProvider{
		cred:    cred,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *huggingFaceEmbedProvider) Name() string {
	return "huggingface"
}

func (p *huggingFaceEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	data, err := json.Marshal(huggingFaceRequest{
		Inputs:  text,
		Options: huggingFaceOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+model, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cred != nil {
		key, err := p.cred.Credential(ctx)
		if err != nil {
			return nil, fmt.Errorf("huggingface credential: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: huggingface request: %w", ErrTransient, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read huggingface response: %w", ErrTransient, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: huggingface request failed: %s: %s", ErrTransient, resp.Status, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("huggingface request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return parseHuggingFaceVector(body)
}

// parseHuggingFaceVector accepts a pooled vector or per-token vectors, which
// are mean pooled. An error object means the model is still loading.
func parseHuggingFaceVector(body []byte) ([]float32, error) {
	var hfErr huggingFaceError
	if err := json.Unmarshal(body, &hfErr); err == nil && hfErr.Error != "" {
		return nil, fmt.Errorf("%w: huggingface: %s", ErrTransient, hfErr.Error)
	}
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil {
		if len(flat) == 0 {
			return nil, fmt.Errorf("%w: huggingface returned an empty vector", ErrTransient)
		}
		return flat, nil
	}
	var tokens [][]float32
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("%w: decode huggingface response: %w", ErrTransient, err)
	}
	return meanPool(tokens)
}

func meanPool(tokens [][]float32) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("%w: huggingface returned an empty vector", ErrTransient)
	}
	dim := len(tokens[0])
	out := make([]float32, dim)
	for _, tok := range tokens {
		if len(tok) != dim {
			return nil, fmt.Errorf("%w: huggingface returned ragged token vectors", ErrTransient)
		}
		for i, v := range tok {
			out[i] += v
		}
	}
	n := float32(len(tokens))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

func createHuggingFaceEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &huggingFaceConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	return NewHuggingFaceEmbedProvider(strings.TrimSpace(cfg.BaseURL), cfg.provider(), nil), nil
}

func init() {
	RegisterEmbed("huggingface", createHuggingFaceEmbedFactory)
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

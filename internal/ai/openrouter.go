package ai

import (
	"net/http"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	credentialConfig
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

// OpenRouter exposes an OpenAI compatible embeddings endpoint plus two
// attribution headers.
func createOpenRouterEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	headers := map[string]string{}
	if cfg.HTTPReferer != "" {
		headers["HTTP-Referer"] = cfg.HTTPReferer
	}
	if cfg.XTitle != "" {
		headers["X-Title"] = cfg.XTitle
	}
	return &openAIEmbedProvider{
		name:    "openrouter",
		cred:    cfg.provider(),
		baseURL: baseURL,
		headers: headers,
		client:  http.DefaultClient,
	}, nil
}

func init() {
	RegisterEmbed("openrouter", createOpenRouterEmbedFactory)
}

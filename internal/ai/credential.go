package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrNoCredential = errors.New("credential not available")

// CredentialProvider supplies the secret used to call an embedding API.
type CredentialProvider interface {
	Credential(ctx context.Context) (string, error)
}

type StaticCredential string

func (s StaticCredential) Credential(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	return string(s), nil
}

type EnvCredential string

func (e EnvCredential) Credential(ctx context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", fmt.Errorf("env %s: %w", string(e), ErrNoCredential)
	}
	return v, nil
}

type FileCredential string

func (f FileCredential) Credential(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read credential file: %w", err)
	}
	v := strings.TrimSpace(string(raw))
	if v == "" {
		return "", fmt.Errorf("file %s: %w", string(f), ErrNoCredential)
	}
	return v, nil
}

type cachedCredential struct {
	next  CredentialProvider
	group singleflight.Group
	mu    sync.RWMutex
	value string
}

// NewCachedCredential keeps the first successful value of next. Concurrent
// callers share one fetch; failures are not remembered.
func NewCachedCredential(next CredentialProvider) CredentialProvider {
	return &cachedCredential{next: next}
}

func (c *cachedCredential) Credential(ctx context.Context) (string, error) {
	c.mu.RLock()
	v := c.value
	c.mu.RUnlock()
	if v != "" {
		return v, nil
	}
	res, err, _ := c.group.Do("credential", func() (interface{}, error) {
		c.mu.RLock()
		cached := c.value
		c.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}
		v, err := c.next.Credential(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.value = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

type credentialConfig struct {
	APIKey     string `json:"api_key"`
	APIKeyEnv  string `json:"api_key_env"`
	APIKeyFile string `json:"api_key_file"`
}

// provider returns nil when no credential source is configured.
func (c credentialConfig) provider() CredentialProvider {
	switch {
	case strings.TrimSpace(c.APIKey) != "":
		return StaticCredential(strings.TrimSpace(c.APIKey))
	case c.APIKeyEnv != "":
		return NewCachedCredential(EnvCredential(c.APIKeyEnv))
	case c.APIKeyFile != "":
		return NewCachedCredential(FileCredential(c.APIKeyFile))
	}
	return nil
}

package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/config"
	"github.com/ekaya-inc/insights-engine/pkg/retry"
)

// NewClientFromConfig builds the configured provider client wrapped in a GuardedClient.
func NewClientFromConfig(cfg config.LLMConfig, logger *zap.Logger) (*GuardedClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := &Config{
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}

	var inner LLMClient
	switch cfg.Provider {
	case config.ProviderAnthropic:
		c, err := NewAnthropicClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		inner = c
	case config.ProviderOpenAI:
		if clientCfg.Endpoint == "" {
			clientCfg.Endpoint = "https://api.openai.com/v1"
		}
		c, err := NewClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		inner = c
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.TransportRetries
	retryCfg.InitialDelay = 500 * time.Millisecond
	retryCfg.MaxDelay = 8 * time.Second

	return NewGuardedClient(inner, GuardConfig{
		Timeout: cfg.Timeout,
		Retry:   retryCfg,
		CircuitBreaker: CircuitBreakerConfig{
			Threshold:  cfg.CircuitThreshold,
			ResetAfter: cfg.CircuitResetAfter,
		},
	}, logger), nil
}

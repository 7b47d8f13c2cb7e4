package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/retry"
)

// GuardConfig controls the protection applied around an oracle client.
type GuardConfig struct {
	Timeout        time.Duration // Per attempt; zero disables
	Retry          *retry.Config // Transport retries for transient errors
	CircuitBreaker CircuitBreakerConfig
}

// GuardedClient wraps an LLMClient with a circuit breaker, transient-error retries and a
// per-attempt timeout. Failures come back as *Error.
type GuardedClient struct {
	inner   LLMClient
	cfg     GuardConfig
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedClient wraps inner.
func NewGuardedClient(inner LLMClient, cfg GuardConfig, logger *zap.Logger) *GuardedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	return &GuardedClient{
		inner:   inner,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  logger.Named("llm-guard"),
	}
}

// GenerateResponse implements LLMClient.
func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, maxTokens int) (*GenerateResponseResult, error) {
	if allowed, err := g.breaker.Allow(); !allowed {
		g.observe(err)
		return nil, err
	}

	retryCfg := *g.cfg.Retry
	retryCfg.OnRetry = func(err error, next time.Duration) {
		metrics.OracleRetries.Inc()
		g.logger.Warn("Retrying oracle call",
			zap.String("error_type", string(GetErrorType(err))),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	var result *GenerateResponseResult
	err := retry.DoIfRetryable(ctx, &retryCfg, func() error {
		attemptCtx := ctx
		if g.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
			defer cancel()
		}
		r, err := g.inner.GenerateResponse(attemptCtx, prompt, systemMessage, temperature, maxTokens)
		if err != nil {
			return ClassifyError(err)
		}
		result = r
		return nil
	})

	if err != nil {
		// A caller abort says nothing about the provider's health.
		if ctx.Err() == nil || g.breaker.State() == CircuitHalfOpen {
			g.breaker.RecordFailure()
		}
		g.observe(err)
		return nil, ClassifyError(err)
	}

	g.breaker.RecordSuccess()
	g.observe(nil)
	return result, nil
}

func (g *GuardedClient) observe(err error) {
	metrics.OracleCircuitState.Set(float64(g.breaker.State()))
	if err == nil {
		metrics.OracleCalls.WithLabelValues("success", "").Inc()
		return
	}
	metrics.OracleCalls.WithLabelValues("failure", string(GetErrorType(err))).Inc()
}

// Breaker exposes the circuit breaker for health reporting.
func (g *GuardedClient) Breaker() *CircuitBreaker {
	return g.breaker
}

// GetModel implements LLMClient.
func (g *GuardedClient) GetModel() string {
	return g.inner.GetModel()
}

// GetEndpoint implements LLMClient.
func (g *GuardedClient) GetEndpoint() string {
	return g.inner.GetEndpoint()
}

package describe

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mykhaliev/tool-bench/logger"
	"github.com/mykhaliev/tool-bench/model"
	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	retryAfterBuffer      = 10 * time.Second
)

var (
	retryAfterPattern = regexp.MustCompile(`retry after (\d+) seconds?`)

	rateLimitEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolbench_describer_rate_limit_events_total",
		Help: "Describer requests throttled locally or rejected with 429, by event.",
	}, []string{"event"})
)

// RateLimitStats counts throttling and 429 handling of one wrapped model.
type RateLimitStats struct {
	ThrottleCount     int
	ThrottleWait      time.Duration
	RateLimitHits     int
	RetryCount        int
	RetrySuccessCount int
}

// RateLimitedLLM throttles an llms.Model to the configured requests and
// tokens per minute, and optionally retries requests rejected with 429.
// Token counts are estimated before the call, so TPM limiting is best effort.
type RateLimitedLLM struct {
	wrapped    llms.Model
	rpmLimiter *rate.Limiter
	tpmLimiter *rate.Limiter
	modelName  string

	retryOn429     bool
	maxRetries     int
	initialBackoff time.Duration

	mu    sync.Mutex
	stats RateLimitStats
}

// NeedsLimiter reports whether a provider configuration asks for throttling
// or 429 retries.
func NeedsLimiter(limits model.RateLimitConfig, retry model.RetryConfig) bool {
	return limits.TPM > 0 || limits.RPM > 0 || retry.RetryOn429
}

func NewRateLimitedLLM(wrapped llms.Model, limits model.RateLimitConfig, retry model.RetryConfig, modelName string) *RateLimitedLLM {
	maxRetries := retry.MaxRetries
	if retry.RetryOn429 && maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	rl := &RateLimitedLLM{
		wrapped:        wrapped,
		modelName:      modelName,
		retryOn429:     retry.RetryOn429,
		maxRetries:     maxRetries,
		initialBackoff: defaultInitialBackoff,
	}

	// burst is a full minute's worth
	if limits.RPM > 0 {
		rl.rpmLimiter = rate.NewLimiter(rate.Limit(float64(limits.RPM)/60.0), limits.RPM)
		logger.Logger.Info("Rate limiter configured", "type", "RPM", "limit", limits.RPM)
	}
	if limits.TPM > 0 {
		rl.tpmLimiter = rate.NewLimiter(rate.Limit(float64(limits.TPM)/60.0), limits.TPM)
		logger.Logger.Info("Rate limiter configured", "type", "TPM", "limit", limits.TPM)
	}
	if rl.retryOn429 {
		logger.Logger.Info("429 retry handling enabled", "max_retries", maxRetries)
	}
	return rl
}

func (rl *RateLimitedLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := rl.throttle(ctx, messages); err != nil {
		return nil, err
	}

	resp, err := rl.wrapped.GenerateContent(ctx, messages, options...)
	if err == nil || !isRateLimitError(err) {
		return resp, err
	}

	rl.record(func(s *RateLimitStats) { s.RateLimitHits++ })
	rateLimitEvents.WithLabelValues("429").Inc()
	if !rl.retryOn429 {
		return nil, err
	}

	backoff := rl.initialBackoff
	for attempt := 1; attempt <= rl.maxRetries; attempt++ {
		wait := backoff
		if retryAfter := extractRetryAfter(err); retryAfter > 0 {
			wait = retryAfter
		}
		wait = min(wait, defaultMaxBackoff)

		logger.Logger.Warn("429 rate limit hit, retrying",
			"attempt", attempt,
			"max_retries", rl.maxRetries,
			"wait_seconds", wait.Seconds(),
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		rl.record(func(s *RateLimitStats) { s.RetryCount++ })

		resp, err = rl.wrapped.GenerateContent(ctx, messages, options...)
		if err == nil {
			rl.record(func(s *RateLimitStats) { s.RetrySuccessCount++ })
			logger.Logger.Info("Request succeeded after 429 retry", "attempt", attempt)
			return resp, nil
		}
		if !isRateLimitError(err) {
			return nil, err
		}
		rl.record(func(s *RateLimitStats) { s.RateLimitHits++ })
		rateLimitEvents.WithLabelValues("429").Inc()
		backoff *= 2
	}

	logger.Logger.Error("429 retries exhausted", "max_retries", rl.maxRetries, "error", err)
	return nil, err
}

func (rl *RateLimitedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, rl, prompt, options...)
}

func (rl *RateLimitedLLM) Stats() RateLimitStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.stats
}

func (rl *RateLimitedLLM) throttle(ctx context.Context, messages []llms.MessageContent) error {
	start := time.Now()

	if rl.rpmLimiter != nil {
		if err := rl.rpmLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	if rl.tpmLimiter != nil {
		tokens := min(rl.estimateTokens(messages), rl.tpmLimiter.Burst())
		if tokens > 0 {
			if err := rl.tpmLimiter.WaitN(ctx, tokens); err != nil {
				return err
			}
		}
	}

	// ignore scheduler noise
	if waited := time.Since(start); waited > 10*time.Millisecond {
		rl.record(func(s *RateLimitStats) {
			s.ThrottleCount++
			s.ThrottleWait += waited
		})
		rateLimitEvents.WithLabelValues("throttle").Inc()
	}
	return nil
}

func (rl *RateLimitedLLM) record(update func(*RateLimitStats)) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	update(&rl.stats)
}

// estimateTokens counts prompt tokens with the model's tiktoken encoding when
// one exists, else at four characters per token. Half again is added for the
// completion.
func (rl *RateLimitedLLM) estimateTokens(messages []llms.MessageContent) int {
	var texts []string
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				texts = append(texts, text.Text)
			}
		}
	}

	prompt := 0
	if enc := rl.encoding(); enc != nil {
		for _, t := range texts {
			prompt += len(enc.Encode(t, nil, nil))
		}
	} else {
		chars := 0
		for _, t := range texts {
			chars += len(t)
		}
		prompt = chars / 4
		if prompt == 0 && chars > 0 {
			prompt = 1
		}
	}
	return prompt + prompt/2
}

func (rl *RateLimitedLLM) encoding() *tiktoken.Tiktoken {
	if rl.modelName == "" {
		return nil
	}
	enc, err := tiktoken.EncodingForModel(rl.modelName)
	if err != nil {
		logger.Logger.Debug("No tiktoken encoding for model", "model", rl.modelName, "error", err)
		return nil
	}
	return enc
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// extractRetryAfter reads "retry after N seconds" from provider errors, as
// Azure OpenAI sends them.
func extractRetryAfter(err error) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(strings.ToLower(err.Error()))
	if len(m) < 2 {
		return 0
	}
	seconds, convErr := strconv.Atoi(m[1])
	if convErr != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds)*time.Second + retryAfterBuffer
}

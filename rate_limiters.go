package openai

import (
	"time"

	"golang.org/x/time/rate"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// RateLimiters holds the client side rate limiters for the chat API.
//
// They are not enforced unless the client is created with
// WithRateLimiters, in which case every chat request first waits on
// Chat.Requests, and the tokens reported by each reply are reserved
// against Chat.Tokens.
//
// # Example
//
//	client := openai.NewClient(key, openai.WithRateLimiters(openai.NewRateLimiters()))
//
//	// Or check a limiter by hand before making a request.
//	if limits.Chat.Requests.Allow() {
//	    reply, err := client.CreateChat(ctx, req)
//	    ...
//	}
type RateLimiters struct {
	Chat struct {
		Requests *rate.Limiter
		Tokens   *rate.Limiter
	}
}

// DefaultRequestsPerMinute and DefaultTokensPerMinute are the limits used
// by NewRateLimiters.
const (
	DefaultRequestsPerMinute = 3500
	DefaultTokensPerMinute   = 90000
)

// NewRateLimiters returns a new set of rate limiters using the default
// per-minute limits.
func NewRateLimiters() *RateLimiters {
	return NewRateLimitersPerMinute(DefaultRequestsPerMinute, DefaultTokensPerMinute)
}

// NewRateLimitersPerMinute returns rate limiters that allow the given number
// of requests and tokens per minute, with a full minute of burst.
//
// Providers other than OpenAI usually publish different limits, and
// organizations should each use their own set.
func NewRateLimitersPerMinute(requests, tokens int) *RateLimiters {
	rl := &RateLimiters{}

	rl.Chat.Requests = rate.NewLimiter(perMinute(requests), requests)
	rl.Chat.Tokens = rate.NewLimiter(perMinute(tokens), tokens)

	return rl
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(n) / time.Minute.Seconds())
}

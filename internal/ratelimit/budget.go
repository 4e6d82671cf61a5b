package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetResult is the outcome of a token budget check.
type BudgetResult struct {
	Allowed     bool
	SpentTokens int64
	LimitTokens int64
}

// BudgetTracker tracks daily token consumption per provider via Redis, so a
// runaway session cannot burn through an API allowance overnight.
type BudgetTracker struct {
	rdb *redis.Client
}

// NewBudgetTracker creates a budget tracker. A nil client means every check
// passes.
func NewBudgetTracker(rdb *redis.Client) *BudgetTracker {
	return &BudgetTracker{rdb: rdb}
}

func dailyBudgetKey(provider string) string {
	day := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("muse:budget:daily:%s:%s", provider, day)
}

// CheckDailyTokens checks whether the provider is still under its daily
// token allowance. Zero limit disables the check.
func (b *BudgetTracker) CheckDailyTokens(ctx context.Context, provider string, limitTokens int64) (BudgetResult, error) {
	if b.rdb == nil || limitTokens <= 0 {
		return BudgetResult{Allowed: true, LimitTokens: limitTokens}, nil
	}

	spent, err := b.rdb.Get(ctx, dailyBudgetKey(provider)).Int64()
	if err != nil && err != redis.Nil {
		// Fail open on Redis errors.
		return BudgetResult{Allowed: true, LimitTokens: limitTokens}, nil
	}

	return BudgetResult{
		Allowed:     spent < limitTokens,
		SpentTokens: spent,
		LimitTokens: limitTokens,
	}, nil
}

// RecordTokens adds consumed tokens to the provider's daily counter. The key
// expires shortly after the UTC day ends.
func (b *BudgetTracker) RecordTokens(ctx context.Context, provider string, tokens int64) error {
	if b.rdb == nil || tokens <= 0 {
		return nil
	}

	key := dailyBudgetKey(provider)
	pipe := b.rdb.Pipeline()
	pipe.IncrBy(ctx, key, tokens)
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

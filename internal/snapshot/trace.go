package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/secmaster/internal/rules"
)

// PushIssues appends issues to the rule trace list.
func (c *Cache) PushIssues(ctx context.Context, issues []rules.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	vals := make([]any, len(issues))
	for i, is := range issues {
		b, err := json.Marshal(is)
		if err != nil {
			return fmt.Errorf("encode issue: %w", err)
		}
		vals[i] = b
	}
	if err := c.client.RPush(ctx, TraceList, vals...).Err(); err != nil {
		return unavailable("push issues", err)
	}
	return nil
}

// RuleTrace returns up to limit issues in the order they were pushed.
func (c *Cache) RuleTrace(ctx context.Context, limit int) ([]rules.Issue, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	raw, err := c.client.LRange(ctx, TraceList, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, unavailable("rule trace", err)
	}
	out := make([]rules.Issue, 0, len(raw))
	for _, s := range raw {
		var is rules.Issue
		if err := json.Unmarshal([]byte(s), &is); err != nil {
			return out, fmt.Errorf("decode issue: %w", err)
		}
		out = append(out, is)
	}
	return out, nil
}

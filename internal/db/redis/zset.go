package redis

import (
	"context"

	"github.com/kailas-cloud/entsearch/internal/db"
)

// ZRevRangeWithScores returns members by descending score within the [start, stop] rank range.
func (s *Store) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]db.ZMember, error) {
	cmd := s.b().Zrevrange().Key(key).Start(start).Stop(stop).Withscores().Build()
	scores, err := s.do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRevRange, Err: err}
	}

	out := make([]db.ZMember, len(scores))
	for i, z := range scores {
		out[i] = db.ZMember{Member: z.Member, Score: z.Score}
	}
	return out, nil
}

// ZRangeByScore returns up to count members with scores in [minScore, maxScore], ascending.
// Bounds use Redis syntax ("-inf", "(123").
func (s *Store) ZRangeByScore(ctx context.Context, key, minScore, maxScore string, count int64) ([]string, error) {
	cmd := s.b().Zrangebyscore().Key(key).Min(minScore).Max(maxScore).Limit(0, count).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpZRangeByScore, Err: err}
	}
	return members, nil
}

// ZCard returns the number of members in a sorted set.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Zcard().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpZCard, Err: err}
	}
	return n, nil
}

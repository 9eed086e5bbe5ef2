/**
 * @description
 * Cached analytics for the billing dashboard. The aggregate query is cheap to
 * serve from cache and safe to recompute, so the cache is purely a latency
 * optimization: a stale read never corrupts state.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/proptly/billing-service/internal/domain"
)

// ErrInvalidAnalyticsQuery wraps query-schema validation failures so the API
// layer can map them to a client error.
var ErrInvalidAnalyticsQuery = errors.New("invalid analytics query")

// Analytics serves the aggregate report for the identity's query. With
// refresh set, the cache is bypassed and overwritten. The second return value
// reports whether the response came from cache.
func (s *Service) Analytics(ctx context.Context, ident domain.Identity, q domain.AnalyticsQuery, refresh bool) (*domain.AnalyticsReport, bool, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidAnalyticsQuery, err)
	}

	key := CacheKey(ident, q)
	if !refresh {
		if report, ok := s.cache.Get(key); ok {
			return report, true, nil
		}
	}

	from, to, err := q.Window(time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidAnalyticsQuery, err)
	}
	report, err := s.repo.ComputeAnalytics(ctx, q, from, to)
	if err != nil {
		return nil, false, err
	}

	s.cache.Set(key, report)
	log.Printf("level=info component=analytics msg=\"report computed\" user_id=%s group_by=%s groups=%d refresh=%t",
		ident.UserID, q.GroupBy, len(report.Groups), refresh)
	return report, false, nil
}

// InvalidateAnalytics clears cached reports. Admins clear the whole cache;
// any other caller only clears entries under their own identity prefix.
// Returns the number of entries removed.
func (s *Service) InvalidateAnalytics(ident domain.Identity) int {
	if ident.Role == domain.RoleAdmin {
		removed := s.cache.Clear()
		log.Printf("level=info component=analytics msg=\"cache cleared\" user_id=%s removed=%d", ident.UserID, removed)
		return removed
	}
	removed := s.cache.DeletePrefix(ScopePrefix(ident))
	log.Printf("level=info component=analytics msg=\"cache scope cleared\" user_id=%s role=%s removed=%d", ident.UserID, ident.Role, removed)
	return removed
}

package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/galleryscape/listingd/pkg/listing"
)

const serviceName = "SearchService"

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the search Service.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) Feed(ctx context.Context, sort listing.ListingSort, offset, limit int) (res *listing.ListingSearchResult, err error) {
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("Feed failed",
				zap.String("service", serviceName),
				zap.String("method", "Feed"),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("Feed completed",
				zap.String("service", serviceName),
				zap.String("method", "Feed"),
				zap.Int64("version_id", res.VersionID),
				zap.Int("total", res.Total),
				zap.Int("returned", len(res.Items)),
				zap.Duration("duration", duration),
			)
		}
	}()
	return ls.svc.Feed(ctx, sort, offset, limit)
}

func (ls *logService) SearchListings(ctx context.Context, q ListingQuery) (res *listing.ListingSearchResult, err error) {
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("SearchListings failed",
				zap.String("service", serviceName),
				zap.String("method", "SearchListings"),
				zap.Int("value_ids", len(q.Filter.ValueIDs)),
				zap.Int("groups", len(q.Filter.Groups)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("SearchListings completed",
				zap.String("service", serviceName),
				zap.String("method", "SearchListings"),
				zap.Int64("version_id", res.VersionID),
				zap.Int("total", res.Total),
				zap.Int("offset", res.UsedOffset),
				zap.Int("returned", len(res.Items)),
				zap.Duration("duration", duration),
			)
		}
	}()
	return ls.svc.SearchListings(ctx, q)
}

func (ls *logService) SearchTokens(ctx context.Context, q TokenQuery) (res *listing.TokenSearchResult, err error) {
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		if err != nil {
			ls.logger.Error("SearchTokens failed",
				zap.String("service", serviceName),
				zap.String("method", "SearchTokens"),
				zap.Int("value_ids", len(q.Filter.ValueIDs)),
				zap.Int("groups", len(q.Filter.Groups)),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		} else {
			ls.logger.Info("SearchTokens completed",
				zap.String("service", serviceName),
				zap.String("method", "SearchTokens"),
				zap.Int("total", res.Total),
				zap.Int("offset", res.UsedOffset),
				zap.Int("returned", len(res.Items)),
				zap.Duration("duration", duration),
			)
		}
	}()
	return ls.svc.SearchTokens(ctx, q)
}

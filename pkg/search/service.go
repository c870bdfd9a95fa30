// Package search implements the query service and HTTP surface: the flat
// cached feed plus trait-filtered listing and token searches.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	apperrors "github.com/galleryscape/listingd/pkg/app/errors"
	"github.com/galleryscape/listingd/pkg/listing"
	"github.com/galleryscape/listingd/pkg/listingstore"
	"github.com/galleryscape/listingd/pkg/snapcache"
)

// ListingQuery is a sanitized listing search request.
type ListingQuery struct {
	Filter        listing.Filter
	Sort          listing.ListingSort
	Page          listing.Page
	IncludeTraits bool
}

// TokenQuery is a sanitized token catalog search request.
type TokenQuery struct {
	Filter        listing.Filter
	Sort          listing.TokenSort
	Page          listing.Page
	IncludeTraits bool
}

// Service is the query surface served over HTTP.
type Service interface {
	// Feed returns one page of the cached active snapshot, sorted by price.
	Feed(ctx context.Context, sort listing.ListingSort, offset, limit int) (*listing.ListingSearchResult, error)
	SearchListings(ctx context.Context, q ListingQuery) (*listing.ListingSearchResult, error)
	SearchTokens(ctx context.Context, q TokenQuery) (*listing.TokenSearchResult, error)
}

type service struct {
	store *listingstore.Store
	cache *snapcache.Cache
}

func NewService(store *listingstore.Store, cache *snapcache.Cache) Service {
	return &service{store: store, cache: cache}
}

func (s *service) Feed(ctx context.Context, srt listing.ListingSort, offset, limit int) (*listing.ListingSearchResult, error) {
	snap, err := s.cache.EnsureLoaded(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "loading listing snapshot")
	}

	items := make([]listing.Row, len(snap.Items))
	copy(items, snap.Items)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Price != b.Price {
			if srt.Desc() {
				return a.Price > b.Price
			}
			return a.Price < b.Price
		}
		if srt.Desc() {
			return a.TokenMintAddr > b.TokenMintAddr
		}
		return a.TokenMintAddr < b.TokenMintAddr
	})

	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return &listing.ListingSearchResult{
		VersionID:  snap.VersionID,
		Total:      len(items),
		UsedOffset: offset,
		Items:      items[offset:end],
	}, nil
}

func (s *service) SearchListings(ctx context.Context, q ListingQuery) (*listing.ListingSearchResult, error) {
	res, err := s.store.SearchListings(ctx, q.Filter, q.Sort, q.Page)
	if err != nil {
		return nil, mapStoreErr(err, "searching listings")
	}
	if q.IncludeTraits {
		if err := s.enrichListings(ctx, res.Items); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *service) SearchTokens(ctx context.Context, q TokenQuery) (*listing.TokenSearchResult, error) {
	res, err := s.store.SearchTokens(ctx, q.Filter, q.Sort, q.Page)
	if err != nil {
		return nil, mapStoreErr(err, "searching tokens")
	}
	if q.IncludeTraits {
		if err := s.enrichTokens(ctx, res.Items); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *service) enrichListings(ctx context.Context, rows []listing.Row) error {
	ids := make([]int64, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.TokenID]; !ok {
			seen[r.TokenID] = struct{}{}
			ids = append(ids, r.TokenID)
		}
	}
	traits, err := s.store.TraitsByToken(ctx, ids)
	if err != nil {
		return mapStoreErr(err, "loading traits")
	}
	for i := range rows {
		if t, ok := traits[rows[i].TokenID]; ok {
			rows[i].Traits = t
		} else {
			rows[i].Traits = []listing.Trait{}
		}
	}
	return nil
}

func (s *service) enrichTokens(ctx context.Context, rows []listing.TokenRow) error {
	ids := make([]int64, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.TokenID]; !ok {
			seen[r.TokenID] = struct{}{}
			ids = append(ids, r.TokenID)
		}
	}
	traits, err := s.store.TraitsByToken(ctx, ids)
	if err != nil {
		return mapStoreErr(err, "loading traits")
	}
	for i := range rows {
		if t, ok := traits[rows[i].TokenID]; ok {
			rows[i].Traits = t
		} else {
			rows[i].Traits = []listing.Trait{}
		}
	}
	return nil
}

// mapStoreErr translates store failures into service errors. A missing
// active version means the first synchronization has not completed yet.
func mapStoreErr(err error, action string) error {
	if errors.Is(err, listingstore.ErrNoActiveVersion) {
		return apperrors.ResourceNotFoundError(err, "no active listing snapshot")
	}
	return apperrors.GeneralError(fmt.Errorf("%s: %w", action, err))
}

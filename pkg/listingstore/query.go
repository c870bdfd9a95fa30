package listingstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/galleryscape/listingd/pkg/listing"
)

// traitMatch builds the token-id subquery for a non-empty filter. Discrete
// value ids intersect (a token must carry every id); grouped criteria OR
// within a group and AND across groups. Placeholder assignments are ignored
// throughout.
func (s *Store) traitMatch(idb bun.IDB, f listing.Filter) *bun.SelectQuery {
	q := idb.NewSelect().
		Model((*TokenTraitDao)(nil)).
		Column("token_id").
		Where("value_id != ?", s.blankValueID).
		Group("token_id")
	if len(f.ValueIDs) > 0 {
		return q.
			Where("value_id IN (?)", bun.In(f.ValueIDs)).
			Having("COUNT(DISTINCT value_id) = ?", len(f.ValueIDs))
	}
	q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, g := range f.Groups {
			q = q.WhereOr("(type_id = ? AND value_id IN (?))", g.TypeID, bun.In(g.ValueIDs))
		}
		return q
	})
	return q.Having("COUNT(DISTINCT type_id) = ?", len(f.Groups))
}

func (s *Store) listingBase(idb bun.IDB, versionID int64, f listing.Filter) *bun.SelectQuery {
	q := idb.NewSelect().
		TableExpr("listings_current AS lc").
		Join("JOIN tokens AS t ON t.token_mint_addr = lc.token_mint_addr").
		Where("lc.version_id = ?", versionID)
	if !f.Empty() {
		q = q.Join("JOIN (?) AS ft ON ft.token_id = t.id", s.traitMatch(idb, f))
	}
	return q
}

func (s *Store) tokenBase(idb bun.IDB, f listing.Filter) *bun.SelectQuery {
	q := idb.NewSelect().TableExpr("tokens AS t")
	if !f.Empty() {
		q = q.Join("JOIN (?) AS ft ON ft.token_id = t.id", s.traitMatch(idb, f))
	}
	return q
}

// SearchListings runs count, anchor ranking and the page query inside one
// read-only transaction pinned to the version id resolved at its start, so
// a concurrent activation cannot split the result.
func (s *Store) SearchListings(ctx context.Context, f listing.Filter, sort listing.ListingSort, page listing.Page) (*listing.ListingSearchResult, error) {
	var out *listing.ListingSearchResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		versionID, err := activeVersionID(ctx, tx)
		if err != nil {
			return err
		}

		var total int
		if err := s.listingBase(tx, versionID, f).ColumnExpr("COUNT(*)").Scan(ctx, &total); err != nil {
			return fmt.Errorf("counting listings: %w", err)
		}

		offset := page.Offset
		if page.AnchorMint != "" {
			rank, ok, err := s.listingAnchorRank(ctx, tx, versionID, f, sort, page.AnchorMint)
			if err != nil {
				return err
			}
			if ok {
				offset = listing.CenterOffset(total, rank, page.Limit)
			} else {
				offset = 0
			}
		}

		order := "lc.price ASC, lc.token_mint_addr ASC"
		if sort.Desc() {
			order = "lc.price DESC, lc.token_mint_addr DESC"
		}
		var daos []listingRowDao
		err = s.listingBase(tx, versionID, f).
			ColumnExpr("lc.token_mint_addr, lc.token_num, lc.price, lc.seller, lc.image_url, lc.listing_source").
			ColumnExpr("t.id AS token_id, t.name AS token_name").
			OrderExpr(order).
			Offset(offset).
			Limit(page.Limit).
			Scan(ctx, &daos)
		if err != nil {
			return fmt.Errorf("selecting listing page: %w", err)
		}

		rows := make([]listing.Row, 0, len(daos))
		for _, d := range daos {
			rows = append(rows, listing.Row{
				TokenMintAddr: d.TokenMintAddr,
				TokenNum:      d.TokenNum,
				Price:         d.Price,
				Seller:        d.Seller,
				ImageURL:      d.ImageURL,
				ListingSource: d.ListingSource,
				TokenID:       d.TokenID,
				TokenName:     d.TokenName,
			})
		}
		out = &listing.ListingSearchResult{
			VersionID:  versionID,
			Total:      total,
			UsedOffset: offset,
			Items:      rows,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// listingAnchorRank counts the matching rows sorting strictly before the
// anchor. ok is false when the anchor mint is not in the current version,
// in which case pagination degenerates to the first page.
func (s *Store) listingAnchorRank(ctx context.Context, tx bun.Tx, versionID int64, f listing.Filter, sort listing.ListingSort, mint string) (int, bool, error) {
	var price int64
	err := tx.NewSelect().
		TableExpr("listings_current").
		Column("price").
		Where("version_id = ? AND token_mint_addr = ?", versionID, mint).
		Scan(ctx, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolving anchor listing: %w", err)
	}

	q := s.listingBase(tx, versionID, f).ColumnExpr("COUNT(*)")
	if sort.Desc() {
		q = q.Where("(lc.price > ? OR (lc.price = ? AND lc.token_mint_addr > ?))", price, price, mint)
	} else {
		q = q.Where("(lc.price < ? OR (lc.price = ? AND lc.token_mint_addr < ?))", price, price, mint)
	}
	var rank int
	if err := q.Scan(ctx, &rank); err != nil {
		return 0, false, fmt.Errorf("ranking anchor listing: %w", err)
	}
	return rank, true, nil
}

// SearchTokens searches the static catalog regardless of listing state.
// Token number sorts place numberless tokens last in both directions so the
// anchor rank count and the page ordering agree.
func (s *Store) SearchTokens(ctx context.Context, f listing.Filter, sort listing.TokenSort, page listing.Page) (*listing.TokenSearchResult, error) {
	var out *listing.TokenSearchResult
	err := s.db.RunInTx(ctx, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx bun.Tx) error {
		var total int
		if err := s.tokenBase(tx, f).ColumnExpr("COUNT(*)").Scan(ctx, &total); err != nil {
			return fmt.Errorf("counting tokens: %w", err)
		}

		offset := page.Offset
		if page.AnchorMint != "" {
			rank, ok, err := s.tokenAnchorRank(ctx, tx, f, sort, page.AnchorMint)
			if err != nil {
				return err
			}
			if ok {
				offset = listing.CenterOffset(total, rank, page.Limit)
			} else {
				offset = 0
			}
		}

		order := "t.token_num ASC NULLS LAST, t.token_mint_addr ASC"
		if sort.Desc() {
			order = "t.token_num DESC NULLS LAST, t.token_mint_addr DESC"
		}
		var daos []tokenRowDao
		err := s.tokenBase(tx, f).
			ColumnExpr("t.token_mint_addr, t.token_num, t.image_url").
			ColumnExpr("t.id AS token_id, t.name AS token_name").
			OrderExpr(order).
			Offset(offset).
			Limit(page.Limit).
			Scan(ctx, &daos)
		if err != nil {
			return fmt.Errorf("selecting token page: %w", err)
		}

		rows := make([]listing.TokenRow, 0, len(daos))
		for _, d := range daos {
			rows = append(rows, listing.TokenRow{
				TokenMintAddr: d.TokenMintAddr,
				TokenNum:      d.TokenNum,
				ImageURL:      d.ImageURL,
				TokenID:       d.TokenID,
				TokenName:     d.TokenName,
			})
		}
		out = &listing.TokenSearchResult{
			Total:      total,
			UsedOffset: offset,
			Items:      rows,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// tokenAnchorRank counts matching tokens sorting strictly before the
// anchor. ok is false when the anchor is unknown or has no token number,
// since a NULL sort key has no rank.
func (s *Store) tokenAnchorRank(ctx context.Context, tx bun.Tx, f listing.Filter, sort listing.TokenSort, mint string) (int, bool, error) {
	var num sql.NullInt64
	err := tx.NewSelect().
		TableExpr("tokens").
		Column("token_num").
		Where("token_mint_addr = ?", mint).
		Scan(ctx, &num)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolving anchor token: %w", err)
	}
	if !num.Valid {
		return 0, false, nil
	}

	q := s.tokenBase(tx, f).ColumnExpr("COUNT(*)")
	if sort.Desc() {
		q = q.Where("(t.token_num > ? OR (t.token_num = ? AND t.token_mint_addr > ?))", num.Int64, num.Int64, mint)
	} else {
		q = q.Where("(t.token_num < ? OR (t.token_num = ? AND t.token_mint_addr < ?))", num.Int64, num.Int64, mint)
	}
	var rank int
	if err := q.Scan(ctx, &rank); err != nil {
		return 0, false, fmt.Errorf("ranking anchor token: %w", err)
	}
	return rank, true, nil
}

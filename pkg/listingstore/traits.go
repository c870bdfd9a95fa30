package listingstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/galleryscape/listingd/pkg/listing"
)

// TraitsByToken batch-loads the enriched trait assignments for the given
// token ids. Placeholder assignments are skipped. Tokens with no usable
// assignments simply have no map entry; callers substitute an empty slice.
func (s *Store) TraitsByToken(ctx context.Context, tokenIDs []int64) (map[int64][]listing.Trait, error) {
	out := make(map[int64][]listing.Trait, len(tokenIDs))
	if len(tokenIDs) == 0 {
		return out, nil
	}
	var daos []traitRowDao
	err := s.db.NewSelect().
		TableExpr("token_traits AS tt").
		Join("JOIN trait_types AS ty ON ty.id = tt.type_id").
		Join("JOIN trait_values AS tv ON tv.id = tt.value_id").
		ColumnExpr("tt.token_id, tt.type_id, tt.value_id").
		ColumnExpr("ty.name AS type_name, ty.spatial_group, ty.purpose_class").
		ColumnExpr("tv.value").
		Where("tt.token_id IN (?)", bun.In(tokenIDs)).
		Where("tt.value_id != ?", s.blankValueID).
		OrderExpr("tt.token_id, tt.type_id").
		Scan(ctx, &daos)
	if err != nil {
		return nil, fmt.Errorf("loading traits: %w", err)
	}
	for _, d := range daos {
		out[d.TokenID] = append(out[d.TokenID], listing.Trait{
			TypeID:       d.TypeID,
			TypeName:     d.TypeName,
			SpatialGroup: d.SpatialGroup,
			PurposeClass: d.PurposeClass,
			ValueID:      d.ValueID,
			Value:        d.Value,
		})
	}
	return out, nil
}

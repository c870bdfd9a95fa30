package listingstore

import (
	"time"

	"github.com/uptrace/bun"
)

// VersionDao maps to the 'listing_versions' table. At most one row is
// active; its snapshot rows are the set served to readers.
type VersionDao struct {
	bun.BaseModel `bun:"table:listing_versions,alias:lv"`
	ID            int64     `bun:"id,pk,autoincrement"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Total         int       `bun:"total,notnull,use_zero"`
	Active        bool      `bun:"active,notnull,use_zero,default:false"`
}

// SnapshotDao maps to the 'listings_current' table. Rows are owned by their
// version and removed with it.
type SnapshotDao struct {
	bun.BaseModel `bun:"table:listings_current,alias:lc"`
	ID            int64       `bun:"id,pk,autoincrement"`
	VersionID     int64       `bun:"version_id,notnull"`
	TokenMintAddr string      `bun:"token_mint_addr,notnull,type:varchar(64)"`
	TokenNum      *int64      `bun:"token_num"`
	Price         int64       `bun:"price,notnull,use_zero"`
	Seller        string      `bun:"seller,notnull,type:varchar(64)"`
	ImageURL      string      `bun:"image_url,notnull,type:text"`
	ListingSource string      `bun:"listing_source,notnull,type:varchar(64)"`
	CreatedAt     time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Version       *VersionDao `bun:"rel:belongs-to,join:version_id=id,on_delete:CASCADE"`
}

// TokenDao maps to the 'tokens' table: the static, version-independent
// catalog populated by ingestion collaborators.
type TokenDao struct {
	bun.BaseModel `bun:"table:tokens,alias:t"`
	ID            int64   `bun:"id,pk,autoincrement"`
	TokenMintAddr string  `bun:"token_mint_addr,unique,notnull,type:varchar(64)"`
	TokenNum      *int64  `bun:"token_num"`
	Name          *string `bun:"name,type:varchar(255)"`
	ImageURL      string  `bun:"image_url,notnull,type:text"`
}

// TraitTypeDao maps to the 'trait_types' table.
type TraitTypeDao struct {
	bun.BaseModel `bun:"table:trait_types,alias:ty"`
	ID            int64   `bun:"id,pk,autoincrement"`
	Name          string  `bun:"name,notnull,type:varchar(128)"`
	SpatialGroup  *string `bun:"spatial_group,type:varchar(64)"`
	PurposeClass  *string `bun:"purpose_class,type:varchar(64)"`
}

// TraitValueDao maps to the 'trait_values' table.
type TraitValueDao struct {
	bun.BaseModel `bun:"table:trait_values,alias:tv"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Value         string `bun:"value,notnull,type:varchar(255)"`
}

// TokenTraitDao maps to the 'token_traits' table. The unique index on
// (token_id, type_id) enforces at most one value per type per token;
// re-ingestion upserts against it.
type TokenTraitDao struct {
	bun.BaseModel `bun:"table:token_traits,alias:tt"`
	ID            int64 `bun:"id,pk,autoincrement"`
	TokenID       int64 `bun:"token_id,notnull"`
	TypeID        int64 `bun:"type_id,notnull"`
	ValueID       int64 `bun:"value_id,notnull"`
}

// listingRowDao is the scan target for listing search pages (snapshot row
// joined with its catalog token).
type listingRowDao struct {
	TokenMintAddr string  `bun:"token_mint_addr"`
	TokenNum      *int64  `bun:"token_num"`
	Price         int64   `bun:"price"`
	Seller        string  `bun:"seller"`
	ImageURL      string  `bun:"image_url"`
	ListingSource string  `bun:"listing_source"`
	TokenID       int64   `bun:"token_id"`
	TokenName     *string `bun:"token_name"`
}

// tokenRowDao is the scan target for token search pages.
type tokenRowDao struct {
	TokenMintAddr string  `bun:"token_mint_addr"`
	TokenNum      *int64  `bun:"token_num"`
	ImageURL      string  `bun:"image_url"`
	TokenID       int64   `bun:"token_id"`
	TokenName     *string `bun:"token_name"`
}

// traitRowDao is the scan target for batched trait enrichment.
type traitRowDao struct {
	TokenID      int64   `bun:"token_id"`
	TypeID       int64   `bun:"type_id"`
	TypeName     string  `bun:"type_name"`
	SpatialGroup *string `bun:"spatial_group"`
	PurposeClass *string `bun:"purpose_class"`
	ValueID      int64   `bun:"value_id"`
	Value        string  `bun:"value"`
}

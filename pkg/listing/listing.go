// Package listing defines the domain model shared by the synchronization
// engine, the query engine and the HTTP layer: normalized marketplace
// listings, versioned snapshot rows, trait filters and sort orders.
package listing

// NormalizedListing is the validated output of the marketplace fetcher.
// It is ephemeral: rows are staged during a synchronization attempt and
// never persisted in this form.
type NormalizedListing struct {
	TokenMintAddr string `json:"token_mint_addr"`
	TokenNum      *int64 `json:"token_num,omitempty"`
	Price         int64  `json:"price"` // smallest on-chain unit (lamports)
	Seller        string `json:"seller"`
	ImageURL      string `json:"image_url"`
	ListingSource string `json:"listing_source"`
}

// SyncCounts is the insert/update/delete accounting of one synchronization.
type SyncCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Total    int `json:"total"`
}

// SyncResult reports the outcome of one synchronization attempt.
type SyncResult struct {
	Changed   bool       `json:"changed"`
	VersionID int64      `json:"version_id,omitempty"`
	Counts    SyncCounts `json:"counts"`
}

// Row is one listing snapshot row joined with its static catalog token.
type Row struct {
	TokenMintAddr string  `json:"token_mint_addr"`
	TokenNum      *int64  `json:"token_num"`
	Price         int64   `json:"price"`
	Seller        string  `json:"seller"`
	ImageURL      string  `json:"image_url"`
	ListingSource string  `json:"listing_source"`
	TokenID       int64   `json:"token_id"`
	TokenName     *string `json:"token_name"`
	Traits        []Trait `json:"traits"` // empty slice when enriched, null when traits were not requested
}

// TokenRow is one static catalog token.
type TokenRow struct {
	TokenMintAddr string  `json:"token_mint_addr"`
	TokenNum      *int64  `json:"token_num"`
	ImageURL      string  `json:"image_url"`
	TokenID       int64   `json:"token_id"`
	TokenName     *string `json:"token_name"`
	Traits        []Trait `json:"traits"`
}

// Trait is one enriched (type, value) assignment of a token.
type Trait struct {
	TypeID       int64   `json:"type_id"`
	TypeName     string  `json:"type_name"`
	SpatialGroup *string `json:"spatial_group"`
	PurposeClass *string `json:"purpose_class"`
	ValueID      int64   `json:"value_id"`
	Value        string  `json:"value"`
}

// ListingSearchResult is one page of a listing search, together with the
// version it was read from and the offset actually used (which differs from
// the requested one under anchor-centered pagination).
type ListingSearchResult struct {
	VersionID  int64 `json:"version_id"`
	Total      int   `json:"total"`
	UsedOffset int   `json:"offset"`
	Items      []Row `json:"items"`
}

// TokenSearchResult is one page of a token catalog search.
type TokenSearchResult struct {
	Total      int        `json:"total"`
	UsedOffset int        `json:"offset"`
	Items      []TokenRow `json:"items"`
}

// Snapshot is the full row set of one version, as served by the cache.
type Snapshot struct {
	VersionID int64
	Items     []Row
}

// Group selects tokens having at least one assignment whose (type, value)
// pair falls within (TypeID, ValueIDs).
type Group struct {
	TypeID   int64   `json:"typeId"`
	ValueIDs []int64 `json:"valueIds"`
}

// Filter restricts a search to tokens matching trait criteria. Exactly one
// of ValueIDs (intersection across discrete value ids) or Groups (OR within
// a group, AND across groups) is set; an empty filter matches everything.
type Filter struct {
	ValueIDs []int64
	Groups   []Group
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.ValueIDs) == 0 && len(f.Groups) == 0
}

// Page selects one page of a sorted result set. When AnchorMint is set the
// offset is ignored and recomputed to center the page on the anchor's rank.
type Page struct {
	Offset     int
	Limit      int
	AnchorMint string
}

// CenterOffset computes the page offset that centers an item of the given
// rank, clamped so the page stays within [0, total).
func CenterOffset(total, rank, limit int) int {
	maxStart := total - limit
	if maxStart < 0 {
		maxStart = 0
	}
	start := rank - limit/2
	if start < 0 {
		start = 0
	}
	if start > maxStart {
		start = maxStart
	}
	return start
}

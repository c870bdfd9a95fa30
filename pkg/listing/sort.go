package listing

// ListingSort orders listing search results by price, ties broken by mint
// address in the same direction so the order is total.
type ListingSort string

const (
	PriceAsc  ListingSort = "price_asc"
	PriceDesc ListingSort = "price_desc"
)

// ParseListingSort maps a client-provided sort string to a ListingSort,
// falling back to price_asc for anything unrecognized.
func ParseListingSort(raw string) ListingSort {
	if raw == string(PriceDesc) {
		return PriceDesc
	}
	return PriceAsc
}

// Desc reports whether the sort is descending.
func (s ListingSort) Desc() bool { return s == PriceDesc }

// TokenSort orders token catalog results by token number, ties broken by
// mint address in the same direction.
type TokenSort string

const (
	TokenAsc  TokenSort = "token_asc"
	TokenDesc TokenSort = "token_desc"
)

// ParseTokenSort maps a client-provided sort string to a TokenSort, falling
// back to token_asc for anything unrecognized (including price_* values).
func ParseTokenSort(raw string) TokenSort {
	if raw == string(TokenDesc) {
		return TokenDesc
	}
	return TokenAsc
}

// Desc reports whether the sort is descending.
func (s TokenSort) Desc() bool { return s == TokenDesc }

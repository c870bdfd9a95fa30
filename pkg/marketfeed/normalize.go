package marketfeed

import (
	"regexp"
	"strconv"

	"github.com/mr-tron/base58"

	"github.com/galleryscape/listingd/pkg/listing"
)

var tokenNumRe = regexp.MustCompile(`#(\d+)`)

// apiListing is the marketplace's listing shape. Only the fields we
// consume are declared; everything else is ignored during decoding.
type apiListing struct {
	TokenMint string `json:"tokenMint"`
	Seller    string `json:"seller"`
	PriceInfo struct {
		SolPrice struct {
			RawAmount string `json:"rawAmount"`
		} `json:"solPrice"`
	} `json:"priceInfo"`
	Extra struct {
		Img string `json:"img"`
	} `json:"extra"`
	ListingSource string `json:"listingSource"`
	Token         struct {
		Name string `json:"name"`
	} `json:"token"`
}

// normalize validates one feed item. It returns false for malformed
// records: a missing or non-32-byte mint, an unparseable raw price, or any
// other mandatory field absent. The token number is best-effort, parsed
// from a "#<n>" fragment of the token name.
func normalize(item apiListing) (listing.NormalizedListing, bool) {
	var out listing.NormalizedListing

	if !validMint(item.TokenMint) {
		return out, false
	}
	if item.Seller == "" || item.Extra.Img == "" || item.ListingSource == "" {
		return out, false
	}
	price, err := strconv.ParseInt(item.PriceInfo.SolPrice.RawAmount, 10, 64)
	if err != nil || price < 0 {
		return out, false
	}

	out = listing.NormalizedListing{
		TokenMintAddr: item.TokenMint,
		TokenNum:      parseTokenNum(item.Token.Name),
		Price:         price,
		Seller:        item.Seller,
		ImageURL:      item.Extra.Img,
		ListingSource: item.ListingSource,
	}
	return out, true
}

// validMint reports whether s decodes as a 32-byte base58 public key.
func validMint(s string) bool {
	if s == "" {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

func parseTokenNum(name string) *int64 {
	m := tokenNumRe.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

package search

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/galleryscape/listingd/internal/metrics"
	apperrors "github.com/galleryscape/listingd/pkg/app/errors"
	apphttp "github.com/galleryscape/listingd/pkg/app/http"
	"github.com/galleryscape/listingd/pkg/listing"
)

// Clamps applied to every query regardless of what the client sends.
const (
	MaxListingLimit = 200
	MaxTokenLimit   = 100
	MaxOffset       = 1_000_000
	DefaultLimit    = 100

	maxBodySize = 1 << 20
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service      Service
	logger       *zap.Logger
	blankValueID int64
}

// RegisterRoutes registers the query endpoints on the given chi router.
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger, blankValueID int64) {
	h := &HTTP{
		service:      service,
		logger:       logger,
		blankValueID: blankValueID,
	}

	r.Get("/listings", apphttp.HandleError(h.feed))
	r.Post("/listings/search", apphttp.HandleError(h.searchListings))
	r.Post("/tokens/search", apphttp.HandleError(h.searchTokens))
}

// searchRequest is the body of both search endpoints. Numeric ids arrive as
// JSON numbers; non-integral ones are dropped during sanitization rather
// than failing the request.
type searchRequest struct {
	Mode          string          `json:"mode"`
	ValueIDs      []float64       `json:"valueIds"`
	Traits        []traitGroupReq `json:"traits"`
	Sort          string          `json:"sort"`
	Offset        int             `json:"offset"`
	Limit         int             `json:"limit"`
	AnchorMint    string          `json:"anchorMint"`
	IncludeTraits *bool           `json:"includeTraits"`
}

// typeId decodes as float64 so a malformed id drops its group during
// sanitization instead of failing the whole request.
type traitGroupReq struct {
	TypeID   float64   `json:"typeId"`
	ValueIDs []float64 `json:"valueIds"`
}

type listingsResponse struct {
	VersionID int64         `json:"versionId"`
	Total     int           `json:"total"`
	Offset    int           `json:"offset"`
	Limit     int           `json:"limit"`
	Sort      string        `json:"sort"`
	Items     []listing.Row `json:"items"`
}

type tokensResponse struct {
	VersionID *int64             `json:"versionId"`
	Total     int                `json:"total"`
	Offset    int                `json:"offset"`
	Limit     int                `json:"limit"`
	Sort      string             `json:"sort"`
	Items     []listing.TokenRow `json:"items"`
}

func (h *HTTP) feed(w http.ResponseWriter, r *http.Request) error {
	defer observe("feed", time.Now())

	params := r.URL.Query()
	offset := clamp(queryInt(params.Get("offset"), 0), 0, MaxOffset)
	limit := clamp(queryInt(params.Get("limit"), DefaultLimit), 1, MaxListingLimit)
	sort := listing.ParseListingSort(params.Get("sort"))

	res, err := h.service.Feed(r.Context(), sort, offset, limit)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, listingsResponse{
		VersionID: res.VersionID,
		Total:     res.Total,
		Offset:    res.UsedOffset,
		Limit:     limit,
		Sort:      string(sort),
		Items:     res.Items,
	})
	return nil
}

func (h *HTTP) searchListings(w http.ResponseWriter, r *http.Request) error {
	defer observe("listings_search", time.Now())

	req, err := h.decode(r)
	if err != nil {
		return err
	}

	sort := listing.ParseListingSort(req.Sort)
	limit := clamp(req.Limit, 1, MaxListingLimit)
	if req.Limit == 0 {
		limit = DefaultLimit
	}

	q := ListingQuery{
		Filter:        h.buildFilter(req),
		Sort:          sort,
		Page:          h.buildPage(req, limit),
		IncludeTraits: req.IncludeTraits == nil || *req.IncludeTraits,
	}
	res, err := h.service.SearchListings(r.Context(), q)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, listingsResponse{
		VersionID: res.VersionID,
		Total:     res.Total,
		Offset:    res.UsedOffset,
		Limit:     limit,
		Sort:      string(sort),
		Items:     res.Items,
	})
	return nil
}

func (h *HTTP) searchTokens(w http.ResponseWriter, r *http.Request) error {
	defer observe("tokens_search", time.Now())

	req, err := h.decode(r)
	if err != nil {
		return err
	}

	sort := listing.ParseTokenSort(req.Sort)
	limit := clamp(req.Limit, 1, MaxTokenLimit)
	if req.Limit == 0 {
		limit = DefaultLimit
	}

	q := TokenQuery{
		Filter:        h.buildFilter(req),
		Sort:          sort,
		Page:          h.buildPage(req, limit),
		IncludeTraits: req.IncludeTraits == nil || *req.IncludeTraits,
	}
	res, err := h.service.SearchTokens(r.Context(), q)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, tokensResponse{
		VersionID: nil,
		Total:     res.Total,
		Offset:    res.UsedOffset,
		Limit:     limit,
		Sort:      string(sort),
		Items:     res.Items,
	})
	return nil
}

func (h *HTTP) decode(r *http.Request) (*searchRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, apperrors.BadRequestError(err, "failed to read request")
	}
	var req searchRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, apperrors.BadRequestError(err, "invalid JSON")
		}
	}
	return &req, nil
}

// buildFilter sanitizes the request's criteria. The mode field picks the
// filter shape: grouped criteria apply only in trait mode, discrete value
// ids apply otherwise.
func (h *HTTP) buildFilter(req *searchRequest) listing.Filter {
	if strings.ToLower(req.Mode) == "trait" {
		groups := make([]listing.Group, 0, len(req.Traits))
		for _, g := range req.Traits {
			if math.IsNaN(g.TypeID) || math.IsInf(g.TypeID, 0) || g.TypeID != math.Trunc(g.TypeID) {
				continue
			}
			ids := h.sanitizeIDs(g.ValueIDs)
			if len(ids) == 0 {
				continue
			}
			groups = append(groups, listing.Group{TypeID: int64(g.TypeID), ValueIDs: ids})
		}
		if len(groups) == 0 {
			return listing.Filter{}
		}
		return listing.Filter{Groups: groups}
	}
	if ids := h.sanitizeIDs(req.ValueIDs); len(ids) > 0 {
		return listing.Filter{ValueIDs: ids}
	}
	return listing.Filter{}
}

func (h *HTTP) buildPage(req *searchRequest, limit int) listing.Page {
	offset := clamp(req.Offset, 0, MaxOffset)
	if req.AnchorMint != "" {
		offset = 0
	}
	return listing.Page{
		Offset:     offset,
		Limit:      limit,
		AnchorMint: req.AnchorMint,
	}
}

// sanitizeIDs drops non-integral numbers and the placeholder value id, and
// removes duplicates preserving order.
func (h *HTTP) sanitizeIDs(raw []float64) []int64 {
	out := make([]int64, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			continue
		}
		id := int64(v)
		if id == h.blankValueID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func observe(endpoint string, start time.Time) {
	metrics.SearchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

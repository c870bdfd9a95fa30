package listingstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/galleryscape/listingd/pkg/listing"
)

// stagingDao maps to the session-local staging table.
type stagingDao struct {
	bun.BaseModel `bun:"table:listing_staging"`
	TokenMintAddr string `bun:"token_mint_addr,pk"`
	TokenNum      *int64 `bun:"token_num"`
	Price         int64  `bun:"price,notnull,use_zero"`
	Seller        string `bun:"seller,notnull"`
	ImageURL      string `bun:"image_url,notnull"`
	ListingSource string `bun:"listing_source,notnull"`
}

// Staging is a scoped handle for one synchronization attempt. It pins a
// pooled connection and owns a TEMP table on it; Close tears both down and
// must run on every exit path.
type Staging struct {
	conn   bun.Conn
	closed bool
}

// BeginStaging takes a connection from the pool and creates the staging
// table on it. The table is session-local, so concurrent attempts (or
// leftovers from a crashed one) cannot collide.
func (s *Store) BeginStaging(ctx context.Context) (*Staging, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring staging connection: %w", err)
	}
	_, err = conn.ExecContext(ctx, `
		CREATE TEMP TABLE listing_staging (
			token_mint_addr varchar(64) PRIMARY KEY,
			token_num       bigint,
			price           bigint NOT NULL,
			seller          varchar(64) NOT NULL,
			image_url       text NOT NULL,
			listing_source  varchar(64) NOT NULL
		)`)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("creating staging table: %w", err)
	}
	return &Staging{conn: conn}, nil
}

// Close drops the staging table and releases the connection. Safe to call
// more than once.
func (st *Staging) Close(ctx context.Context) error {
	if st.closed {
		return nil
	}
	st.closed = true
	_, dropErr := st.conn.ExecContext(ctx, `DROP TABLE IF EXISTS listing_staging`)
	closeErr := st.conn.Close()
	if dropErr != nil {
		return fmt.Errorf("dropping staging table: %w", dropErr)
	}
	return closeErr
}

// Load bulk-inserts the fetched listing set into the staging table. A mint
// appearing more than once keeps the last occurrence. Duplicates are
// collapsed before the insert; Postgres rejects a single statement whose
// ON CONFLICT DO UPDATE touches the same row twice.
func (st *Staging) Load(ctx context.Context, rows []listing.NormalizedListing) error {
	if len(rows) == 0 {
		return nil
	}
	daos := make([]stagingDao, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		dao := stagingDao{
			TokenMintAddr: r.TokenMintAddr,
			TokenNum:      r.TokenNum,
			Price:         r.Price,
			Seller:        r.Seller,
			ImageURL:      r.ImageURL,
			ListingSource: r.ListingSource,
		}
		if i, ok := index[r.TokenMintAddr]; ok {
			daos[i] = dao
			continue
		}
		index[r.TokenMintAddr] = len(daos)
		daos = append(daos, dao)
	}
	_, err := st.conn.NewInsert().
		Model(&daos).
		On("CONFLICT (token_mint_addr) DO UPDATE").
		Set("token_num = EXCLUDED.token_num").
		Set("price = EXCLUDED.price").
		Set("seller = EXCLUDED.seller").
		Set("image_url = EXCLUDED.image_url").
		Set("listing_source = EXCLUDED.listing_source").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loading staging rows: %w", err)
	}
	return nil
}

// CountDiffs compares the staged set against the active version's rows.
// A listing counts as updated when its price moved by at least epsilon
// or any other mutable field differs; price wobble below epsilon is noise
// from marketplace fee rounding and does not count.
func (st *Staging) CountDiffs(ctx context.Context, activeID int64, epsilon int64) (listing.SyncCounts, error) {
	var c listing.SyncCounts

	err := st.conn.NewRaw(`
		SELECT COUNT(*) FROM listing_staging ls
		LEFT JOIN listings_current lc
			ON lc.version_id = ? AND lc.token_mint_addr = ls.token_mint_addr
		WHERE lc.token_mint_addr IS NULL`, activeID).Scan(ctx, &c.Inserted)
	if err != nil {
		return c, fmt.Errorf("counting inserted listings: %w", err)
	}

	err = st.conn.NewRaw(`
		SELECT COUNT(*) FROM listing_staging ls
		JOIN listings_current lc
			ON lc.version_id = ? AND lc.token_mint_addr = ls.token_mint_addr
		WHERE ABS(ls.price - lc.price) >= ?
			OR ls.seller IS DISTINCT FROM lc.seller
			OR ls.image_url IS DISTINCT FROM lc.image_url
			OR ls.listing_source IS DISTINCT FROM lc.listing_source
			OR ls.token_num IS DISTINCT FROM lc.token_num`, activeID, epsilon).Scan(ctx, &c.Updated)
	if err != nil {
		return c, fmt.Errorf("counting updated listings: %w", err)
	}

	err = st.conn.NewRaw(`
		SELECT COUNT(*) FROM listings_current lc
		LEFT JOIN listing_staging ls
			ON ls.token_mint_addr = lc.token_mint_addr
		WHERE lc.version_id = ? AND ls.token_mint_addr IS NULL`, activeID).Scan(ctx, &c.Deleted)
	if err != nil {
		return c, fmt.Errorf("counting deleted listings: %w", err)
	}

	err = st.conn.NewRaw(`SELECT COUNT(*) FROM listing_staging`).Scan(ctx, &c.Total)
	if err != nil {
		return c, fmt.Errorf("counting staged listings: %w", err)
	}
	return c, nil
}

// CopyToVersion copies the staged set into listings_current under the given
// version id and returns the number of rows written.
func (st *Staging) CopyToVersion(ctx context.Context, versionID int64) (int, error) {
	res, err := st.conn.ExecContext(ctx, `
		INSERT INTO listings_current
			(version_id, token_mint_addr, token_num, price, seller, image_url, listing_source)
		SELECT ?, token_mint_addr, token_num, price, seller, image_url, listing_source
		FROM listing_staging`, versionID)
	if err != nil {
		return 0, fmt.Errorf("copying staging rows to version %d: %w", versionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

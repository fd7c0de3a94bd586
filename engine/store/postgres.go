package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/WessleyAI/dealflow/engine/domain"
	"github.com/WessleyAI/dealflow/engine/store/migrations"
)

var _ Store = (*Postgres)(nil)

// Postgres is the pgx-backed Store.
type Postgres struct {
	Pool *pgxpool.Pool
}

// Open connects to connString and verifies the connection.
func Open(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.Pool.Close()
}

// Migrate applies the embedded migrations to connString.
func Migrate(connString string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return fmt.Errorf("store: create migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// --- sources ---

func (p *Postgres) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT id, name, parser_key, entry_url, crawl_interval_minutes,
		       rate_limit_per_minute, enabled, last_crawled_at
		FROM sources
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var s domain.Source
		if err := rows.Scan(&s.ID, &s.Name, &s.ParserKey, &s.EntryURL, &s.CrawlIntervalMins,
			&s.RateLimitPerMinute, &s.Enabled, &s.LastCrawledAt); err != nil {
			return nil, fmt.Errorf("store: scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertSources(ctx context.Context, sources []domain.Source) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, s := range sources {
		_, err := tx.Exec(ctx, `
			INSERT INTO sources (id, name, parser_key, entry_url, crawl_interval_minutes,
			                     rate_limit_per_minute, enabled)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				parser_key = EXCLUDED.parser_key,
				entry_url = EXCLUDED.entry_url,
				crawl_interval_minutes = EXCLUDED.crawl_interval_minutes,
				rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
				enabled = EXCLUDED.enabled,
				updated_at = NOW()
		`, s.ID, s.Name, s.ParserKey, s.EntryURL, s.CrawlIntervalMins, s.RateLimitPerMinute, s.Enabled)
		if err != nil {
			return fmt.Errorf("store: upsert source %s: %w", s.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (p *Postgres) TouchSourceCrawled(ctx context.Context, id string, at time.Time) error {
	tag, err := p.Pool.Exec(ctx,
		`UPDATE sources SET last_crawled_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("store: touch source %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- raw listings ---

const rawColumns = `id, source_id, url, title, payload, checksum, status,
	first_seen_at, last_seen_at, COALESCE(last_fetch_error, '')`

func scanRaw(row pgx.Row) (domain.RawListing, error) {
	var (
		r       domain.RawListing
		payload []byte
		status  string
	)
	err := row.Scan(&r.ID, &r.SourceID, &r.URL, &r.Title, &payload, &r.Checksum, &status,
		&r.FirstSeenAt, &r.LastSeenAt, &r.LastFetchError)
	if err != nil {
		return r, err
	}
	r.Status = domain.RawStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &r.Payload); err != nil {
			return r, fmt.Errorf("decode payload: %w", err)
		}
	}
	return r, nil
}

func (p *Postgres) GetRawListing(ctx context.Context, sourceID, url string) (domain.RawListing, error) {
	r, err := scanRaw(p.Pool.QueryRow(ctx,
		`SELECT `+rawColumns+` FROM raw_listings WHERE source_id = $1 AND url = $2`, sourceID, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RawListing{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RawListing{}, fmt.Errorf("store: get raw listing: %w", err)
	}
	return r, nil
}

func (p *Postgres) UpsertRawListing(ctx context.Context, raw *domain.RawListing) error {
	payload, err := json.Marshal(raw.Payload)
	if err != nil {
		return fmt.Errorf("store: encode payload: %w", err)
	}
	if raw.ID == uuid.Nil {
		raw.ID = uuid.New()
	}
	if raw.FirstSeenAt.IsZero() {
		raw.FirstSeenAt = raw.LastSeenAt
	}
	err = p.Pool.QueryRow(ctx, `
		INSERT INTO raw_listings (id, source_id, url, title, payload, checksum, status,
		                          first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_id, url) DO UPDATE SET
			title = EXCLUDED.title,
			payload = EXCLUDED.payload,
			checksum = EXCLUDED.checksum,
			status = EXCLUDED.status,
			last_seen_at = EXCLUDED.last_seen_at
		RETURNING id, first_seen_at
	`, raw.ID, raw.SourceID, raw.URL, raw.Title, payload, raw.Checksum, string(raw.Status),
		raw.FirstSeenAt, raw.LastSeenAt).Scan(&raw.ID, &raw.FirstSeenAt)
	if err != nil {
		return fmt.Errorf("store: upsert raw listing: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateRawPayload(ctx context.Context, id uuid.UUID, payload domain.RawPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("store: encode payload: %w", err)
	}
	tag, err := p.Pool.Exec(ctx,
		`UPDATE raw_listings SET payload = $2, last_fetch_error = NULL WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("store: update raw payload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetRawFetchError(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := p.Pool.Exec(ctx,
		`UPDATE raw_listings SET last_fetch_error = $2 WHERE id = $1`, id, msg)
	if err != nil {
		return fmt.Errorf("store: set fetch error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- canonical deals ---

const canonicalColumns = `id, raw_listing_id, source_id, company_name, headline, industry_tag,
	industry_confidence, city, state, revenue_min, revenue_max, ebitda_min, ebitda_max,
	revenue_band, ebitda_band, asking_price, deal_type, has_teaser_pdf, teaser_pdf_url,
	source_name, source_url, data_confidence, confidence_score, first_seen_at, last_seen_at,
	published_at, is_promoted, promoted_date, is_new_today`

func scanCanonical(row pgx.Row) (domain.CanonicalDeal, error) {
	var (
		d            domain.CanonicalDeal
		tag          *string
		dealType     string
		dataConf     string
		promotedDate *time.Time
	)
	err := row.Scan(&d.ID, &d.RawListingID, &d.SourceID, &d.CompanyName, &d.Headline, &tag,
		&d.IndustryConfidence, &d.City, &d.State, &d.RevenueMin, &d.RevenueMax, &d.EBITDAMin, &d.EBITDAMax,
		&d.RevenueBand, &d.EBITDABand, &d.AskingPrice, &dealType, &d.HasTeaserPDF, &d.TeaserPDFURL,
		&d.SourceName, &d.SourceURL, &dataConf, &d.ConfidenceScore, &d.FirstSeenAt, &d.LastSeenAt,
		&d.PublishedAt, &d.IsPromoted, &promotedDate, &d.IsNewToday)
	if err != nil {
		return d, err
	}
	if tag != nil {
		t := domain.IndustryTag(*tag)
		d.IndustryTag = &t
	}
	d.DealType = domain.DealType(dealType)
	d.DataConfidence = domain.DataConfidence(dataConf)
	if promotedDate != nil {
		day := domain.DayFromTime(*promotedDate)
		d.PromotedDate = &day
	}
	return d, nil
}

// canonicalArgs returns the bind values for every column after id, in
// canonicalColumns order.
func canonicalArgs(d *domain.CanonicalDeal) []any {
	var tag *string
	if d.IndustryTag != nil {
		s := string(*d.IndustryTag)
		tag = &s
	}
	var promoted *time.Time
	if d.PromotedDate != nil {
		t := d.PromotedDate.Time()
		promoted = &t
	}
	return []any{
		d.RawListingID, d.SourceID, d.CompanyName, d.Headline, tag,
		d.IndustryConfidence, d.City, d.State, d.RevenueMin, d.RevenueMax, d.EBITDAMin, d.EBITDAMax,
		d.RevenueBand, d.EBITDABand, d.AskingPrice, string(d.DealType), d.HasTeaserPDF, d.TeaserPDFURL,
		d.SourceName, d.SourceURL, string(d.DataConfidence), d.ConfidenceScore, d.FirstSeenAt, d.LastSeenAt,
		d.PublishedAt, d.IsPromoted, promoted, d.IsNewToday,
	}
}

func (p *Postgres) GetCanonicalByRawID(ctx context.Context, rawID uuid.UUID) (domain.CanonicalDeal, error) {
	d, err := scanCanonical(p.Pool.QueryRow(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_deals WHERE raw_listing_id = $1`, rawID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CanonicalDeal{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CanonicalDeal{}, fmt.Errorf("store: get canonical deal: %w", err)
	}
	return d, nil
}

func (p *Postgres) InsertPromoted(ctx context.Context, deal *domain.CanonicalDeal, day domain.Day, defaultCap int) error {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO daily_caps (day, cap, used) VALUES ($1, $2, 0) ON CONFLICT (day) DO NOTHING`,
		day.Time(), defaultCap); err != nil {
		return fmt.Errorf("store: ensure daily cap: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE daily_caps SET used = used + 1 WHERE day = $1 AND used < cap`, day.Time())
	if err != nil {
		return fmt.Errorf("store: consume daily cap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCapExhausted
	}

	if deal.ID == uuid.Nil {
		deal.ID = uuid.New()
	}
	args := append([]any{deal.ID}, canonicalArgs(deal)...)
	if _, err := tx.Exec(ctx, `
		INSERT INTO canonical_deals (`+canonicalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`, args...); err != nil {
		return fmt.Errorf("store: insert canonical deal: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *Postgres) UpdateCanonical(ctx context.Context, deal *domain.CanonicalDeal) error {
	args := append([]any{deal.ID}, canonicalArgs(deal)...)
	tag, err := p.Pool.Exec(ctx, `
		UPDATE canonical_deals SET
			raw_listing_id = $2, source_id = $3, company_name = $4, headline = $5,
			industry_tag = $6, industry_confidence = $7, city = $8, state = $9,
			revenue_min = $10, revenue_max = $11, ebitda_min = $12, ebitda_max = $13,
			revenue_band = $14, ebitda_band = $15, asking_price = $16, deal_type = $17,
			has_teaser_pdf = $18, teaser_pdf_url = $19, source_name = $20, source_url = $21,
			data_confidence = $22, confidence_score = $23, first_seen_at = $24, last_seen_at = $25,
			published_at = $26,
			is_promoted = canonical_deals.is_promoted OR $27,
			promoted_date = COALESCE(canonical_deals.promoted_date, $28),
			is_new_today = $29
		WHERE id = $1
	`, args...)
	if err != nil {
		return fmt.Errorf("store: update canonical deal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *Postgres) TouchCanonicalSeen(ctx context.Context, rawID uuid.UUID, at time.Time) error {
	if _, err := p.Pool.Exec(ctx,
		`UPDATE canonical_deals SET last_seen_at = $2 WHERE raw_listing_id = $1`, rawID, at); err != nil {
		return fmt.Errorf("store: touch canonical deal: %w", err)
	}
	return nil
}

// --- daily caps ---

func (p *Postgres) GetDailyCap(ctx context.Context, day domain.Day, defaultCap int) (domain.DailyCap, error) {
	c := domain.DailyCap{Day: day}
	err := p.Pool.QueryRow(ctx, `SELECT cap, used FROM daily_caps WHERE day = $1`, day.Time()).Scan(&c.Cap, &c.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		c.Cap = defaultCap
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("store: get daily cap: %w", err)
	}
	return c, nil
}

func (p *Postgres) SetDailyCap(ctx context.Context, day domain.Day, cap int) error {
	if cap < 0 {
		return domain.NewValidationError("cap", fmt.Sprint(cap), domain.ErrNegativeCap)
	}
	if _, err := p.Pool.Exec(ctx, `
		INSERT INTO daily_caps (day, cap, used) VALUES ($1, $2, 0)
		ON CONFLICT (day) DO UPDATE SET cap = EXCLUDED.cap
	`, day.Time(), cap); err != nil {
		return fmt.Errorf("store: set daily cap: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

// ErrNotFound is returned when a game is not stored.
var ErrNotFound = errors.New("game not found")

const (
	popularLimit       = 10
	defaultSearchLimit = 50
)

// SQLRepository persists merged game records through database/sql.
type SQLRepository struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
}

var (
	_ ports.GameRepository = (*SQLRepository)(nil)
	_ ports.CatalogReader  = (*SQLRepository)(nil)
	_ ports.UntaggedLister = (*SQLRepository)(nil)
)

// NewSQLRepository wires an open sql.DB; driver selects the placeholder style.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	driver = normalizeDriver(driver)
	return &SQLRepository{
		db:      db,
		driver:  driver,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholderFor(driver)),
	}
}

// UpsertBatch writes all records in one transaction. Existing games are
// updated in place and their child rows replaced wholesale.
func (r *SQLRepository) UpsertBatch(ctx context.Context, records []domain.MergedGameRecord) error {
	if r.db == nil || len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for i := range records {
		if err := r.upsertGame(ctx, tx, &records[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert game %d: %w", records[i].ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *SQLRepository) upsertGame(ctx context.Context, tx *sql.Tx, rec *domain.MergedGameRecord) error {
	var releaseDate interface{}
	if rec.ReleaseDate != nil {
		releaseDate = rec.ReleaseDate.UTC().Format("2006-01-02")
	}

	upsert := r.builder.Insert("games").
		Columns(
			"app_id", "title", "item_type", "description", "detailed_description",
			"release_date", "release_date_text", "coming_soon", "developer", "publisher",
			"header_image_url", "requirements_minimum", "requirements_recommended",
			"metacritic_score", "crawled_at", "details_updated_at",
		).
		Values(
			int64(rec.ItemID), rec.Title, rec.ItemType, value(rec.Description), value(rec.DetailedDescription),
			releaseDate, value(rec.ReleaseDateText), rec.ComingSoon, value(rec.Developer), value(rec.Publisher),
			value(rec.HeaderImageURL), value(rec.RequirementsMinimum), value(rec.RequirementsRecommended),
			value(rec.MetacriticScore), rec.CrawledAt.UTC(), rec.DetailsUpdatedAt.UTC(),
		).
		Suffix(`ON CONFLICT (app_id) DO UPDATE SET
			title = EXCLUDED.title,
			item_type = EXCLUDED.item_type,
			description = EXCLUDED.description,
			detailed_description = EXCLUDED.detailed_description,
			release_date = EXCLUDED.release_date,
			release_date_text = EXCLUDED.release_date_text,
			coming_soon = EXCLUDED.coming_soon,
			developer = EXCLUDED.developer,
			publisher = EXCLUDED.publisher,
			header_image_url = EXCLUDED.header_image_url,
			requirements_minimum = EXCLUDED.requirements_minimum,
			requirements_recommended = EXCLUDED.requirements_recommended,
			metacritic_score = EXCLUDED.metacritic_score,
			crawled_at = EXCLUDED.crawled_at,
			details_updated_at = EXCLUDED.details_updated_at`)
	if err := r.exec(ctx, tx, upsert); err != nil {
		return fmt.Errorf("games: %w", err)
	}

	for _, table := range []string{"game_tags", "game_genres", "game_pricing", "game_reviews"} {
		if err := r.exec(ctx, tx, r.builder.Delete(table).Where(sq.Eq{"app_id": int64(rec.ItemID)})); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if len(rec.Tags) > 0 {
		insert := r.builder.Insert("game_tags").Columns("app_id", "position", "tag")
		for i, tag := range rec.Tags {
			insert = insert.Values(int64(rec.ItemID), i, tag)
		}
		if err := r.exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("game_tags: %w", err)
		}
	}

	if len(rec.Genres) > 0 {
		insert := r.builder.Insert("game_genres").Columns("app_id", "position", "genre")
		for i, genre := range rec.Genres {
			insert = insert.Values(int64(rec.ItemID), i, genre)
		}
		if err := r.exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("game_genres: %w", err)
		}
	}

	if p := rec.Pricing; p != nil {
		insert := r.builder.Insert("game_pricing").
			Columns("app_id", "current_price", "original_price", "discount_percent", "is_free", "updated_at").
			Values(int64(rec.ItemID), value(p.CurrentPrice), value(p.OriginalPrice), value(p.DiscountPercent), p.IsFree, p.UpdatedAt.UTC())
		if err := r.exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("game_pricing: %w", err)
		}
	}

	if rv := rec.Reviews; rv != nil {
		insert := r.builder.Insert("game_reviews").
			Columns(
				"app_id", "recent_summary", "recent_count", "recent_positive_percent",
				"all_summary", "total_review_count", "all_positive_percent", "updated_at",
			).
			Values(
				int64(rec.ItemID), value(rv.RecentSummary), value(rv.RecentCount), value(rv.RecentPositivePercent),
				value(rv.AllSummary), value(rv.TotalReviewCount), value(rv.AllPositivePercent), rv.UpdatedAt.UTC(),
			)
		if err := r.exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("game_reviews: %w", err)
		}
	}

	return nil
}

func (r *SQLRepository) exec(ctx context.Context, tx *sql.Tx, stmt sq.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// Game loads one stored game with its child rows.
func (r *SQLRepository) Game(ctx context.Context, id domain.ItemID) (*domain.MergedGameRecord, error) {
	query, args, err := r.builder.
		Select(
			"app_id", "title", "item_type", "description", "detailed_description",
			"release_date", "release_date_text", "coming_soon", "developer", "publisher",
			"header_image_url", "requirements_minimum", "requirements_recommended",
			"metacritic_score", "crawled_at", "details_updated_at",
		).
		From("games").
		Where(sq.Eq{"app_id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		rec                                    domain.MergedGameRecord
		appID                                  int64
		description, detailed, releaseText     sql.NullString
		developer, publisher, header           sql.NullString
		minimum, recommended                   sql.NullString
		metacritic                             sql.NullInt64
		releaseDate, crawledAt, detailsUpdated timeValue
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&appID, &rec.Title, &rec.ItemType, &description, &detailed,
		&releaseDate, &releaseText, &rec.ComingSoon, &developer, &publisher,
		&header, &minimum, &recommended,
		&metacritic, &crawledAt, &detailsUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query game %d: %w", id, err)
	}

	rec.ItemID = domain.ItemID(appID)
	rec.Description = stringPtr(description)
	rec.DetailedDescription = stringPtr(detailed)
	rec.ReleaseDateText = stringPtr(releaseText)
	rec.Developer = stringPtr(developer)
	rec.Publisher = stringPtr(publisher)
	rec.HeaderImageURL = stringPtr(header)
	rec.RequirementsMinimum = stringPtr(minimum)
	rec.RequirementsRecommended = stringPtr(recommended)
	rec.MetacriticScore = intPtr(metacritic)
	rec.ReleaseDate = releaseDate.ptr()
	rec.CrawledAt = crawledAt.Time
	rec.DetailsUpdatedAt = detailsUpdated.Time

	if rec.Tags, err = r.children(ctx, "game_tags", "tag", id); err != nil {
		return nil, err
	}
	if rec.Genres, err = r.children(ctx, "game_genres", "genre", id); err != nil {
		return nil, err
	}
	if rec.Pricing, err = r.pricing(ctx, id); err != nil {
		return nil, err
	}
	if rec.Reviews, err = r.reviews(ctx, id); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SQLRepository) children(ctx context.Context, table, column string, id domain.ItemID) ([]string, error) {
	query, args, err := r.builder.Select(column).From(table).
		Where(sq.Eq{"app_id": int64(id)}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return values, nil
}

func (r *SQLRepository) pricing(ctx context.Context, id domain.ItemID) (*domain.Pricing, error) {
	query, args, err := r.builder.
		Select("current_price", "original_price", "discount_percent", "is_free", "updated_at").
		From("game_pricing").
		Where(sq.Eq{"app_id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		p                 domain.Pricing
		current, original sql.NullString
		discount          sql.NullInt64
		updatedAt         timeValue
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&current, &original, &discount, &p.IsFree, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pricing: %w", err)
	}
	p.CurrentPrice = stringPtr(current)
	p.OriginalPrice = stringPtr(original)
	p.DiscountPercent = intPtr(discount)
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

func (r *SQLRepository) reviews(ctx context.Context, id domain.ItemID) (*domain.Reviews, error) {
	query, args, err := r.builder.
		Select(
			"recent_summary", "recent_count", "recent_positive_percent",
			"all_summary", "total_review_count", "all_positive_percent", "updated_at",
		).
		From("game_reviews").
		Where(sq.Eq{"app_id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		recent, all                        sql.NullString
		recentCount, recentPct, total, pct sql.NullInt64
		updatedAt                          timeValue
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&recent, &recentCount, &recentPct, &all, &total, &pct, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	return &domain.Reviews{
		ReviewStats: domain.ReviewStats{
			RecentSummary:         stringPtr(recent),
			RecentCount:           intPtr(recentCount),
			RecentPositivePercent: intPtr(recentPct),
			AllSummary:            stringPtr(all),
			TotalReviewCount:      intPtr(total),
			AllPositivePercent:    intPtr(pct),
		},
		UpdatedAt: updatedAt.Time,
	}, nil
}

// Stats aggregates catalog-wide counters and the most used tags and genres.
func (r *SQLRepository) Stats(ctx context.Context) (domain.CatalogStats, error) {
	var stats domain.CatalogStats

	counters := []struct {
		dest *int
		stmt sq.SelectBuilder
	}{
		{&stats.TotalGames, r.builder.Select("COUNT(*)").From("games")},
		{&stats.FreeGames, r.builder.Select("COUNT(*)").From("game_pricing").Where(sq.Eq{"is_free": true})},
		{&stats.TotalDevelopers, r.builder.Select("COUNT(DISTINCT developer)").From("games").Where(sq.NotEq{"developer": nil})},
		{&stats.PricedGames, r.builder.Select("COUNT(*)").From("game_pricing").Where(sq.NotEq{"current_price": nil})},
		{&stats.ReviewedGames, r.builder.Select("COUNT(*)").From("game_reviews").Where(sq.Gt{"total_review_count": 0})},
	}
	for _, c := range counters {
		query, args, err := c.stmt.ToSql()
		if err != nil {
			return stats, fmt.Errorf("build query: %w", err)
		}
		if err := r.db.QueryRowContext(ctx, query, args...).Scan(c.dest); err != nil {
			return stats, fmt.Errorf("count: %w", err)
		}
	}

	var err error
	if stats.PopularTags, err = r.popular(ctx, "game_tags", "tag"); err != nil {
		return stats, err
	}
	if stats.PopularGenres, err = r.popular(ctx, "game_genres", "genre"); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *SQLRepository) popular(ctx context.Context, table, column string) ([]domain.NamedCount, error) {
	query, args, err := r.builder.
		Select(column, "COUNT(*) AS uses").
		From(table).
		GroupBy(column).
		OrderBy("uses DESC", column).
		Limit(popularLimit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.NamedCount
	for rows.Next() {
		var nc domain.NamedCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// Search lists games matching q, joined with their pricing and review rows.
func (r *SQLRepository) Search(ctx context.Context, q domain.GameQuery) ([]domain.GameListing, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	stmt := r.builder.
		Select(
			"g.app_id", "g.title", "g.developer",
			"p.current_price", "p.discount_percent", "COALESCE(p.is_free, FALSE)",
			"rv.total_review_count", "rv.all_positive_percent",
		).
		From("games g").
		LeftJoin("game_pricing p ON p.app_id = g.app_id").
		LeftJoin("game_reviews rv ON rv.app_id = g.app_id")

	if title := strings.TrimSpace(q.Title); title != "" {
		stmt = stmt.Where(sq.Like{"LOWER(g.title)": "%" + strings.ToLower(title) + "%"})
	}
	if developer := strings.TrimSpace(q.Developer); developer != "" {
		stmt = stmt.Where(sq.Like{"LOWER(g.developer)": "%" + strings.ToLower(developer) + "%"})
	}
	for _, tag := range q.Tags {
		stmt = stmt.Where(sq.Expr("EXISTS (SELECT 1 FROM game_tags t WHERE t.app_id = g.app_id AND t.tag = ?)", tag))
	}
	for _, genre := range q.Genres {
		stmt = stmt.Where(sq.Expr("EXISTS (SELECT 1 FROM game_genres gg WHERE gg.app_id = g.app_id AND gg.genre = ?)", genre))
	}
	if q.FreeOnly {
		stmt = stmt.Where(sq.Eq{"p.is_free": true})
	}
	if q.MinDiscount > 0 {
		stmt = stmt.Where(sq.GtOrEq{"p.discount_percent": q.MinDiscount})
	}
	if q.MinPositive > 0 {
		stmt = stmt.Where(sq.GtOrEq{"rv.all_positive_percent": q.MinPositive})
	}

	// "x IS NULL" sorts missing values last on both drivers.
	switch q.OrderBy {
	case domain.OrderByReviews:
		stmt = stmt.OrderBy("rv.total_review_count IS NULL", "rv.total_review_count DESC", "g.app_id")
	case domain.OrderByDiscount:
		stmt = stmt.OrderBy("p.discount_percent IS NULL", "p.discount_percent DESC", "g.app_id")
	case domain.OrderByRating:
		stmt = stmt.OrderBy("rv.all_positive_percent IS NULL", "rv.all_positive_percent DESC", "g.app_id")
	default:
		stmt = stmt.OrderBy("g.app_id")
	}

	query, args, err := stmt.Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search games: %w", err)
	}
	defer rows.Close()

	var out []domain.GameListing
	for rows.Next() {
		var (
			l                domain.GameListing
			appID            int64
			developer, price sql.NullString
			discount, total  sql.NullInt64
			positive         sql.NullInt64
		)
		if err := rows.Scan(&appID, &l.Title, &developer, &price, &discount, &l.IsFree, &total, &positive); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.ItemID = domain.ItemID(appID)
		l.Developer = stringPtr(developer)
		l.CurrentPrice = stringPtr(price)
		l.DiscountPercent = intPtr(discount)
		l.TotalReviewCount = intPtr(total)
		l.AllPositivePercent = intPtr(positive)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// GamesWithoutTags returns stored games that have no tag rows, ascending.
func (r *SQLRepository) GamesWithoutTags(ctx context.Context, limit int) ([]domain.ItemID, error) {
	stmt := r.builder.Select("g.app_id").
		From("games g").
		Where("NOT EXISTS (SELECT 1 FROM game_tags t WHERE t.app_id = g.app_id)").
		OrderBy("g.app_id")
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query untagged games: %w", err)
	}
	defer rows.Close()

	var ids []domain.ItemID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan app id: %w", err)
		}
		ids = append(ids, domain.ItemID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ids, nil
}

// timeValue scans timestamps whether the driver reports them as time.Time
// or as text, which SQLite does for some column affinities.
type timeValue struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *timeValue) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *timeValue) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}

func (t timeValue) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// value unwraps optional columns so drivers only see nil or a plain value.
func value[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

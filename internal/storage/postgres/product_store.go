// Package postgres provides Postgres-backed persistence for canonical
// products and job bookkeeping.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	ProductsTable   string        `mapstructure:"products_table"`
	JobsTable       string        `mapstructure:"jobs_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store implements crawl.ProductStore on a pgx pool.
type Store struct {
	pool          execCloser
	productsTable string
	jobsTable     string
	logger        *zap.Logger
}

// NewStore connects a pool and returns the store.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, cfg, logger)
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing with pgxmock).
func NewStoreWithPool(pool execCloser, cfg Config, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return newStore(pool, cfg, logger)
}

func newStore(pool execCloser, cfg Config, logger *zap.Logger) (*Store, error) {
	productsTable := cfg.ProductsTable
	if productsTable == "" {
		productsTable = "products"
	}
	jobsTable := cfg.JobsTable
	if jobsTable == "" {
		jobsTable = "acquisition_jobs"
	}
	for _, table := range []string{productsTable, jobsTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:          pool,
		productsTable: productsTable,
		jobsTable:     jobsTable,
		logger:        logger,
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertProducts writes products keyed by source_id and returns how many
// rows were saved. A rejected row is logged and skipped so one bad record
// cannot abort the batch.
func (s *Store) UpsertProducts(ctx context.Context, products []crawl.Product) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("product store is not configured")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	source_id, title, description, price, original_price, currency,
	discount, category, seller_name, seller_rating, product_rating,
	reviews_count, sales_count, sales_7d, sales_30d,
	image_url, images, video_url, product_url, affiliate_url,
	free_shipping, trending, on_sale, in_stock, source, collected_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26
)
ON CONFLICT (source_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	price = EXCLUDED.price,
	original_price = EXCLUDED.original_price,
	currency = EXCLUDED.currency,
	discount = EXCLUDED.discount,
	category = EXCLUDED.category,
	seller_name = EXCLUDED.seller_name,
	seller_rating = EXCLUDED.seller_rating,
	product_rating = EXCLUDED.product_rating,
	reviews_count = EXCLUDED.reviews_count,
	sales_count = EXCLUDED.sales_count,
	sales_7d = EXCLUDED.sales_7d,
	sales_30d = EXCLUDED.sales_30d,
	image_url = EXCLUDED.image_url,
	images = EXCLUDED.images,
	video_url = EXCLUDED.video_url,
	product_url = EXCLUDED.product_url,
	affiliate_url = EXCLUDED.affiliate_url,
	free_shipping = EXCLUDED.free_shipping,
	trending = EXCLUDED.trending,
	on_sale = EXCLUDED.on_sale,
	in_stock = EXCLUDED.in_stock,
	source = EXCLUDED.source,
	collected_at = EXCLUDED.collected_at`, s.productsTable)

	saved := 0
	for _, p := range products {
		if p.SourceID == "" {
			continue
		}
		args := []any{
			p.SourceID, p.Title, p.Description, p.Price, p.OriginalPrice, p.Currency,
			p.Discount, p.Category, p.SellerName, p.SellerRating, p.ProductRating,
			p.ReviewsCount, p.SalesCount, p.Sales7d, p.Sales30d,
			p.ImageURL, p.Images, p.VideoURL, p.ProductURL, p.AffiliateURL,
			p.FreeShipping, p.Trending, p.OnSale, p.InStock, string(p.Source), p.CollectedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			s.logger.Warn("product upsert rejected",
				zap.String("source_id", p.SourceID),
				zap.Error(err),
			)
			continue
		}
		saved++
	}
	return saved, nil
}

// UpdateJobStatus writes the job's current state, upserting by job id so
// status transitions overwrite the queued row.
func (s *Store) UpdateJobStatus(ctx context.Context, job crawl.Job) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("product store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, kind, category, item_limit, requested_at, status,
	started_at, finished_at, error_text, record_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	started_at = EXCLUDED.started_at,
	finished_at = EXCLUDED.finished_at,
	error_text = EXCLUDED.error_text,
	record_count = EXCLUDED.record_count`, s.jobsTable)

	args := []any{
		job.ID, string(job.Kind), job.Category, job.Limit, job.RequestedAt,
		string(job.Status), job.StartedAt, job.FinishedAt, job.ErrorText, job.RecordCount,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

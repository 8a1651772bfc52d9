package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// PostgresStore is the direct-SQL implementation of the Database interface.
// Vectors are stored in pgvector columns and compared with the cosine
// distance operator.
type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

// pgExecutor is satisfied by both pgx.Tx and pgxpool.Pool.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresStore connects to PostgreSQL, configures the pool and runs the
// schema migration. dims is the configured embedding dimensionality; every
// stored vector must match it.
func NewPostgresStore(ctx context.Context, connectionURI string, dims int) (*PostgresStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", ErrInvalidInput)
	}

	config, err := pgxpool.ParseConfig(connectionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	config.MaxConns = 30
	config.MinConns = 5
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{pool: pool, dims: dims}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return store, nil
}

func (db *PostgresStore) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			subcategory TEXT NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			value JSONB NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS repository_entries (
			template_id TEXT PRIMARY KEY REFERENCES templates(id) ON DELETE CASCADE,
			title_embedding vector(%d),
			description_embedding vector(%d),
			combined_embedding vector(%d),
			capabilities_embedding vector(%d),
			usecase_embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}',
			search_text TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL DEFAULT '',
			usage_count BIGINT NOT NULL DEFAULT 0,
			success_count BIGINT NOT NULL DEFAULT 0,
			avg_execution_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
			avg_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			error_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_used_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, db.dims, db.dims, db.dims, db.dims, db.dims),
		`CREATE TABLE IF NOT EXISTS relationships (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (source_id, target_id, type)
		)`,
		`CREATE TABLE IF NOT EXISTS template_versions (
			template_id TEXT NOT NULL,
			version TEXT NOT NULL,
			breaking BOOLEAN NOT NULL DEFAULT FALSE,
			deprecated BOOLEAN NOT NULL DEFAULT FALSE,
			changes JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (template_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			action TEXT NOT NULL,
			success BOOLEAN NOT NULL DEFAULT TRUE,
			execution_ms BIGINT NOT NULL DEFAULT 0,
			metadata JSONB NOT NULL DEFAULT '{}',
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS usage_events_template_idx ON usage_events (template_id)`,
		`CREATE TABLE IF NOT EXISTS dynamic_templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			source_definition TEXT NOT NULL,
			generation_rules TEXT NOT NULL DEFAULT '',
			generated_template_id TEXT NOT NULL DEFAULT '',
			generated_at TIMESTAMPTZ,
			validation_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS subcategories (
			id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			sort_order INTEGER NOT NULL DEFAULT 0,
			UNIQUE (category_id, name)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// inTransaction executes fn within a transaction with explicit rollback on
// error.
func (db *PostgresStore) inTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		rollbackCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tx.Rollback(rollbackCtx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateTemplate inserts a new template. Duplicate ids return
// ErrAlreadyExists.
func (db *PostgresStore) CreateTemplate(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if tpl == nil || tpl.ID == "" {
		return nil, fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	stored := *tpl
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := db.insertTemplate(ctx, db.pool, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (db *PostgresStore) insertTemplate(ctx context.Context, exec pgExecutor, tpl *models.Template) error {
	valueJSON, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	query := `
		INSERT INTO templates (id, version, status, title, category, subcategory, tags, created_at, updated_at, value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = exec.Exec(ctx, query,
		tpl.ID, tpl.Version, string(tpl.Status), tpl.Title, tpl.Category, tpl.Subcategory,
		tpl.Tags, tpl.CreatedAt, tpl.UpdatedAt, valueJSON,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: template %q", ErrAlreadyExists, tpl.ID)
		}
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// UpdateTemplate merges the patch over the stored record.
func (db *PostgresStore) UpdateTemplate(ctx context.Context, id string, patch *models.Template) (*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var merged *models.Template
	err := db.inTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		existing, err := db.getTemplate(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: template %q", ErrNotFound, id)
		}

		merged = mergeTemplate(existing, patch)
		return db.writeTemplate(ctx, tx, merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (db *PostgresStore) writeTemplate(ctx context.Context, exec pgExecutor, tpl *models.Template) error {
	valueJSON, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}

	query := `
		UPDATE templates
		SET version = $2, status = $3, title = $4, category = $5, subcategory = $6,
		    tags = $7, updated_at = $8, value = $9
		WHERE id = $1
	`
	result, err := exec.Exec(ctx, query,
		tpl.ID, tpl.Version, string(tpl.Status), tpl.Title, tpl.Category, tpl.Subcategory,
		tpl.Tags, tpl.UpdatedAt, valueJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: template %q", ErrNotFound, tpl.ID)
	}
	return nil
}

// GetTemplate returns (nil, nil) when the id is unknown.
func (db *PostgresStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return db.getTemplate(ctx, db.pool, id)
}

func (db *PostgresStore) getTemplate(ctx context.Context, exec pgExecutor, id string) (*models.Template, error) {
	var valueJSON []byte
	err := exec.QueryRow(ctx, `SELECT value FROM templates WHERE id = $1`, id).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	var tpl models.Template
	if err := json.Unmarshal(valueJSON, &tpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return &tpl, nil
}

// DeleteTemplate removes the template row; the repository entry cascades.
func (db *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	result, err := db.pool.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	return nil
}

// ListTemplates returns templates matching the filter, most recently
// updated first.
func (db *PostgresStore) ListTemplates(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var whereConditions []string
	args := []any{}
	argIndex := 1

	if filter != nil {
		if filter.Status != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
			args = append(args, string(*filter.Status))
			argIndex++
		}
		if filter.Category != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("category = $%d", argIndex))
			args = append(args, *filter.Category)
			argIndex++
		}
		if filter.Subcategory != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("subcategory = $%d", argIndex))
			args = append(args, *filter.Subcategory)
			argIndex++
		}
		for _, tag := range filter.Tags {
			whereConditions = append(whereConditions, fmt.Sprintf("$%d = ANY(tags)", argIndex))
			args = append(args, tag)
			argIndex++
		}
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT value FROM templates %s ORDER BY updated_at DESC, id`, whereClause)
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var results []*models.Template
	for rows.Next() {
		var valueJSON []byte
		if err := rows.Scan(&valueJSON); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		var tpl models.Template
		if err := json.Unmarshal(valueJSON, &tpl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template: %w", err)
		}
		results = append(results, &tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// UpsertRepository writes the template row and the repository entry as a
// single transaction. On conflict every mutable field is overwritten;
// stats and creation timestamps are preserved.
func (db *PostgresStore) UpsertRepository(ctx context.Context, entry *models.RepositoryEntry) error {
	if entry == nil || entry.TemplateID == "" {
		return fmt.Errorf("%w: repository entry requires a template id", ErrInvalidInput)
	}
	if !entry.Embeddings.Uniform(db.dims) {
		return fmt.Errorf("%w: embeddings must have dimension %d", ErrInvalidInput, db.dims)
	}

	return db.inTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		now := time.Now().UTC()
		tpl := entry.Template
		tpl.UpdatedAt = now
		if tpl.CreatedAt.IsZero() {
			tpl.CreatedAt = now
		}

		valueJSON, err := json.Marshal(&tpl)
		if err != nil {
			return fmt.Errorf("failed to marshal template: %w", err)
		}

		templateQuery := `
			INSERT INTO templates (id, version, status, title, category, subcategory, tags, created_at, updated_at, value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				version = EXCLUDED.version,
				status = EXCLUDED.status,
				title = EXCLUDED.title,
				category = EXCLUDED.category,
				subcategory = EXCLUDED.subcategory,
				tags = EXCLUDED.tags,
				updated_at = EXCLUDED.updated_at,
				value = EXCLUDED.value
		`
		_, err = tx.Exec(ctx, templateQuery,
			tpl.ID, tpl.Version, string(tpl.Status), tpl.Title, tpl.Category, tpl.Subcategory,
			tpl.Tags, tpl.CreatedAt, tpl.UpdatedAt, valueJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert template: %w", err)
		}

		metadataJSON, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}

		vectors := make([]any, 0, 5)
		for _, vec := range [][]float32{
			entry.Embeddings.Title,
			entry.Embeddings.Description,
			entry.Embeddings.Combined,
			entry.Embeddings.Capabilities,
			entry.Embeddings.UseCase,
		} {
			if len(vec) == 0 {
				vectors = append(vectors, nil)
				continue
			}
			literal, err := vectorLiteral(vec)
			if err != nil {
				return err
			}
			vectors = append(vectors, literal)
		}

		entryQuery := `
			INSERT INTO repository_entries (
				template_id, title_embedding, description_embedding, combined_embedding,
				capabilities_embedding, usecase_embedding, metadata, search_text, checksum,
				created_at, updated_at
			)
			VALUES ($1, $2::vector, $3::vector, $4::vector, $5::vector, $6::vector, $7, $8, $9, $10, $10)
			ON CONFLICT (template_id) DO UPDATE SET
				title_embedding = EXCLUDED.title_embedding,
				description_embedding = EXCLUDED.description_embedding,
				combined_embedding = EXCLUDED.combined_embedding,
				capabilities_embedding = EXCLUDED.capabilities_embedding,
				usecase_embedding = EXCLUDED.usecase_embedding,
				metadata = EXCLUDED.metadata,
				search_text = EXCLUDED.search_text,
				checksum = EXCLUDED.checksum,
				updated_at = EXCLUDED.updated_at
		`
		_, err = tx.Exec(ctx, entryQuery,
			entry.TemplateID, vectors[0], vectors[1], vectors[2], vectors[3], vectors[4],
			metadataJSON, entry.SearchText, entry.Checksum, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert repository entry: %w", err)
		}
		return nil
	})
}

// GetRepository returns (nil, nil) when no entry exists for the id.
func (db *PostgresStore) GetRepository(ctx context.Context, templateID string) (*models.RepositoryEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query := `
		SELECT t.value,
		       e.title_embedding::text, e.description_embedding::text, e.combined_embedding::text,
		       e.capabilities_embedding::text, e.usecase_embedding::text,
		       e.metadata, e.search_text, e.checksum,
		       e.usage_count, e.success_count, e.avg_execution_ms, e.avg_rating, e.error_rate,
		       e.last_used_at, e.created_at, e.updated_at
		FROM repository_entries e
		JOIN templates t ON t.id = e.template_id
		WHERE e.template_id = $1
	`

	var (
		valueJSON    []byte
		vectorTexts  [5]sql.NullString
		metadataJSON []byte
		entry        models.RepositoryEntry
		lastUsedAt   sql.NullTime
	)

	err := db.pool.QueryRow(ctx, query, templateID).Scan(
		&valueJSON,
		&vectorTexts[0], &vectorTexts[1], &vectorTexts[2], &vectorTexts[3], &vectorTexts[4],
		&metadataJSON, &entry.SearchText, &entry.Checksum,
		&entry.Stats.UsageCount, &entry.Stats.SuccessCount, &entry.Stats.AvgExecutionMS,
		&entry.Stats.AvgRating, &entry.Stats.ErrorRate,
		&lastUsedAt, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get repository entry: %w", err)
	}

	if err := json.Unmarshal(valueJSON, &entry.Template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	entry.TemplateID = templateID
	if lastUsedAt.Valid {
		entry.Stats.LastUsedAt = &lastUsedAt.Time
	}

	targets := []*[]float32{
		&entry.Embeddings.Title,
		&entry.Embeddings.Description,
		&entry.Embeddings.Combined,
		&entry.Embeddings.Capabilities,
		&entry.Embeddings.UseCase,
	}
	for i, text := range vectorTexts {
		if !text.Valid {
			continue
		}
		vec, err := decodeVector(text.String)
		if err != nil {
			return nil, err
		}
		*targets[i] = vec
	}

	rels, err := db.GetRelatedTemplates(ctx, templateID)
	if err != nil {
		return nil, err
	}
	entry.Relationships = rels

	return &entry, nil
}

// UpdateRepositoryStats patches the derived record without touching the
// template.
func (db *PostgresStore) UpdateRepositoryStats(ctx context.Context, templateID string, stats *models.EntryStats) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if stats == nil {
		return fmt.Errorf("%w: stats are required", ErrInvalidInput)
	}

	query := `
		UPDATE repository_entries
		SET usage_count = $2, success_count = $3, avg_execution_ms = $4,
		    avg_rating = $5, error_rate = $6, last_used_at = $7, updated_at = NOW()
		WHERE template_id = $1
	`
	result, err := db.pool.Exec(ctx, query,
		templateID, stats.UsageCount, stats.SuccessCount, stats.AvgExecutionMS,
		stats.AvgRating, stats.ErrorRate, stats.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update repository stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: repository entry %q", ErrNotFound, templateID)
	}
	return nil
}

// ResetStats zeroes the entry's counters. The explicit reset is the only
// operation allowed to rewrite stats wholesale.
func (db *PostgresStore) ResetStats(ctx context.Context, templateID string) error {
	return db.UpdateRepositoryStats(ctx, templateID, &models.EntryStats{})
}

// SearchTemplates is the lexical search path. Candidate rows are filtered
// in SQL; ranking, highlighting and pagination use the shared helpers so
// both backends order results identically.
func (db *PostgresStore) SearchTemplates(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if query == nil || strings.TrimSpace(query.Query) == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}

	term := strings.ToLower(strings.TrimSpace(query.Query))

	sqlQuery := `
		SELECT t.value, e.search_text
		FROM repository_entries e
		JOIN templates t ON t.id = e.template_id
		WHERE e.search_text LIKE '%' || $1 || '%'
	`
	rows, err := db.pool.Query(ctx, sqlQuery, term)
	if err != nil {
		return nil, fmt.Errorf("failed to query search candidates: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var valueJSON []byte
		var searchText string
		if err := rows.Scan(&valueJSON, &searchText); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		var tpl models.Template
		if err := json.Unmarshal(valueJSON, &tpl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template: %w", err)
		}
		if !matchesFilters(&tpl, query) {
			continue
		}
		score := lexicalScore(&tpl, searchText, term)
		if score == 0 {
			continue
		}
		hits = append(hits, models.SearchHit{
			Template:   tpl,
			Score:      score,
			Highlights: buildHighlights(&tpl, term),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Template.UpdatedAt.After(hits[j].Template.UpdatedAt)
	})

	return paginate(hits, query.Limit, query.Offset), nil
}

// SearchByEmbedding is the vector search path: cosine distance against the
// combined embedding, similarity = 1 - distance, ties broken by template
// id.
func (db *PostgresStore) SearchByEmbedding(ctx context.Context, vector []float32, query *models.SearchQuery) ([]models.SearchHit, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(vector) != db.dims {
		return nil, fmt.Errorf("%w: query vector must have dimension %d", ErrInvalidInput, db.dims)
	}
	if query == nil {
		query = &models.SearchQuery{}
	}

	literal, err := vectorLiteral(vector)
	if err != nil {
		return nil, err
	}

	sqlQuery := `
		SELECT t.value, e.combined_embedding <=> $1::vector AS distance
		FROM repository_entries e
		JOIN templates t ON t.id = e.template_id
		WHERE e.combined_embedding IS NOT NULL
		ORDER BY distance ASC, e.template_id
	`
	rows, err := db.pool.Query(ctx, sqlQuery, literal)
	if err != nil {
		return nil, fmt.Errorf("failed to query by embedding: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var valueJSON []byte
		var distance float64
		if err := rows.Scan(&valueJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		var tpl models.Template
		if err := json.Unmarshal(valueJSON, &tpl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template: %w", err)
		}
		if !matchesFilters(&tpl, query) {
			continue
		}
		hits = append(hits, models.SearchHit{Template: tpl, Score: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return paginate(hits, query.Limit, query.Offset), nil
}

// CreateVersion appends an immutable version record.
func (db *PostgresStore) CreateVersion(ctx context.Context, record *models.VersionRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if record == nil || record.TemplateID == "" || record.Version == "" {
		return fmt.Errorf("%w: version record requires template id and version", ErrInvalidInput)
	}

	changesJSON, err := json.Marshal(record.Changes)
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO template_versions (template_id, version, breaking, deprecated, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = db.pool.Exec(ctx, query,
		record.TemplateID, record.Version, record.Breaking, record.Deprecated, changesJSON, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: version %s of template %q", ErrAlreadyExists, record.Version, record.TemplateID)
		}
		return fmt.Errorf("failed to insert version record: %w", err)
	}
	return nil
}

// GetVersions returns the version history, newest first.
func (db *PostgresStore) GetVersions(ctx context.Context, templateID string) ([]models.VersionRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query := `
		SELECT template_id, version, breaking, deprecated, changes, created_at
		FROM template_versions
		WHERE template_id = $1
		ORDER BY created_at DESC
	`
	rows, err := db.pool.Query(ctx, query, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var records []models.VersionRecord
	for rows.Next() {
		var rec models.VersionRecord
		var changesJSON []byte
		if err := rows.Scan(&rec.TemplateID, &rec.Version, &rec.Breaking, &rec.Deprecated, &changesJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		if err := json.Unmarshal(changesJSON, &rec.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// CreateDynamicTemplate inserts a new dynamic template record.
func (db *PostgresStore) CreateDynamicTemplate(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if dyn == nil || dyn.ID == "" {
		return nil, fmt.Errorf("%w: dynamic template id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	stored := *dyn
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.ValidationStatus == "" {
		stored.ValidationStatus = models.DynamicPending
	}

	query := `
		INSERT INTO dynamic_templates (id, name, source_kind, source_definition, generation_rules,
			generated_template_id, generated_at, validation_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.pool.Exec(ctx, query,
		stored.ID, stored.Name, string(stored.SourceKind), stored.SourceDefinition,
		stored.GenerationRules, stored.GeneratedTemplateID, stored.GeneratedAt,
		string(stored.ValidationStatus), stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: dynamic template %q", ErrAlreadyExists, stored.ID)
		}
		return nil, fmt.Errorf("failed to insert dynamic template: %w", err)
	}
	return &stored, nil
}

// UpdateDynamicTemplate patches only the supplied fields.
func (db *PostgresStore) UpdateDynamicTemplate(ctx context.Context, id string, patch *models.DynamicTemplateUpdate) (*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if patch == nil {
		return nil, fmt.Errorf("%w: update patch is required", ErrInvalidInput)
	}

	var updated *models.DynamicTemplate
	err := db.inTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		existing, err := db.scanDynamicTemplate(tx.QueryRow(ctx,
			dynamicSelectColumns+` FROM dynamic_templates WHERE id = $1`, id))
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: dynamic template %q", ErrNotFound, id)
		}

		updated = applyDynamicUpdate(existing, patch)

		query := `
			UPDATE dynamic_templates
			SET generated_template_id = $2, generated_at = $3, validation_status = $4, updated_at = $5
			WHERE id = $1
		`
		_, err = tx.Exec(ctx, query,
			id, updated.GeneratedTemplateID, updated.GeneratedAt,
			string(updated.ValidationStatus), updated.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update dynamic template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

const dynamicSelectColumns = `
	SELECT id, name, source_kind, source_definition, generation_rules,
	       generated_template_id, generated_at, validation_status, created_at, updated_at`

func (db *PostgresStore) scanDynamicTemplate(row pgx.Row) (*models.DynamicTemplate, error) {
	var dyn models.DynamicTemplate
	var sourceKind, validationStatus string
	var generatedAt sql.NullTime

	err := row.Scan(
		&dyn.ID, &dyn.Name, &sourceKind, &dyn.SourceDefinition, &dyn.GenerationRules,
		&dyn.GeneratedTemplateID, &generatedAt, &validationStatus, &dyn.CreatedAt, &dyn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan dynamic template: %w", err)
	}

	dyn.SourceKind = models.DynamicSourceKind(sourceKind)
	dyn.ValidationStatus = models.DynamicValidationStatus(validationStatus)
	if generatedAt.Valid {
		dyn.GeneratedAt = &generatedAt.Time
	}
	return &dyn, nil
}

// GetDynamicTemplate returns (nil, nil) when the id is unknown.
func (db *PostgresStore) GetDynamicTemplate(ctx context.Context, id string) (*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return db.scanDynamicTemplate(db.pool.QueryRow(ctx,
		dynamicSelectColumns+` FROM dynamic_templates WHERE id = $1`, id))
}

// ListDynamicTemplates returns every dynamic template, newest first.
func (db *PostgresStore) ListDynamicTemplates(ctx context.Context) ([]*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := db.pool.Query(ctx, dynamicSelectColumns+` FROM dynamic_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dynamic templates: %w", err)
	}
	defer rows.Close()

	var results []*models.DynamicTemplate
	for rows.Next() {
		dyn, err := db.scanDynamicTemplate(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, dyn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// UpdateRelationships replaces every outgoing edge for the template in one
// transaction.
func (db *PostgresStore) UpdateRelationships(ctx context.Context, templateID string, rels []models.Relationship) error {
	if templateID == "" {
		return fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}

	rels = dedupeRelationships(rels)

	return db.inTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM relationships WHERE source_id = $1`, templateID); err != nil {
			return fmt.Errorf("failed to clear relationships: %w", err)
		}
		for _, rel := range rels {
			_, err := tx.Exec(ctx,
				`INSERT INTO relationships (source_id, target_id, type) VALUES ($1, $2, $3)`,
				templateID, rel.TargetID, string(rel.Type),
			)
			if err != nil {
				return fmt.Errorf("failed to insert relationship: %w", err)
			}
		}
		return nil
	})
}

// GetRelatedTemplates returns the outgoing edges for a template.
func (db *PostgresStore) GetRelatedTemplates(ctx context.Context, templateID string) ([]models.Relationship, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := db.pool.Query(ctx,
		`SELECT target_id, type FROM relationships WHERE source_id = $1 ORDER BY type, target_id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		var rel models.Relationship
		var relType string
		if err := rows.Scan(&rel.TargetID, &relType); err != nil {
			return nil, fmt.Errorf("failed to scan relationship row: %w", err)
		}
		rel.Type = models.RelationshipType(relType)
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return rels, nil
}

// RecordUsage appends a usage event and bumps the entry's counters in the
// same transaction.
func (db *PostgresStore) RecordUsage(ctx context.Context, event *models.UsageEvent) error {
	if event == nil || event.TemplateID == "" {
		return fmt.Errorf("%w: usage event requires a template id", ErrInvalidInput)
	}

	return db.inTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		occurredAt := event.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO usage_events (id, template_id, action, success, execution_ms, metadata, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, event.ID, event.TemplateID, event.Action, event.Success, event.ExecutionMS, metadataJSON, occurredAt)
		if err != nil {
			return fmt.Errorf("failed to insert usage event: %w", err)
		}

		successDelta := 0
		if event.Success {
			successDelta = 1
		}
		tag, err := tx.Exec(ctx, `
			UPDATE repository_entries
			SET usage_count = usage_count + 1,
			    success_count = success_count + $2,
			    avg_execution_ms = (avg_execution_ms * usage_count + $3) / (usage_count + 1),
			    error_rate = (usage_count + 1 - (success_count + $2))::double precision / (usage_count + 1),
			    last_used_at = $4,
			    updated_at = NOW()
			WHERE template_id = $1
		`, event.TemplateID, successDelta, event.ExecutionMS, occurredAt)
		if err != nil {
			return fmt.Errorf("failed to update usage counters: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Rolls back the event insert too; an event without an entry
			// to count against would silently skew the stats.
			return fmt.Errorf("%w: no repository entry for template %q", ErrNotFound, event.TemplateID)
		}
		return nil
	})
}

// GetUsageStats aggregates usage events for one template. Returns zeroed
// stats, not an error, when no usage exists.
func (db *PostgresStore) GetUsageStats(ctx context.Context, templateID string) (*models.UsageStats, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE success),
		       COALESCE(AVG(execution_ms), 0),
		       MAX(occurred_at)
		FROM usage_events
		WHERE template_id = $1
	`
	stats := &models.UsageStats{TemplateID: templateID}
	var lastUsed sql.NullTime
	err := db.pool.QueryRow(ctx, query, templateID).Scan(
		&stats.TotalCount, &stats.SuccessCount, &stats.AvgExecutionMS, &lastUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage stats: %w", err)
	}
	if lastUsed.Valid {
		stats.LastUsedAt = &lastUsed.Time
	}
	return stats, nil
}

// UpsertCategory creates the category or updates it in place by unique
// name, preserving the existing id.
func (db *PostgresStore) UpsertCategory(ctx context.Context, cat *models.Category) (*models.Category, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if cat == nil || cat.Name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO categories (id, name, display_name, description, icon, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			is_active = EXCLUDED.is_active,
			sort_order = EXCLUDED.sort_order
		RETURNING id
	`
	stored := *cat
	err := db.pool.QueryRow(ctx, query,
		cat.ID, cat.Name, cat.DisplayName, cat.Description, cat.Icon, cat.IsActive, cat.SortOrder,
	).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert category: %w", err)
	}
	return &stored, nil
}

// CreateSubcategory inserts a subcategory; a duplicate (category id, name)
// returns ErrAlreadyExists for the caller to decide about.
func (db *PostgresStore) CreateSubcategory(ctx context.Context, categoryID string, sub *models.Subcategory) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sub == nil || sub.Name == "" {
		return fmt.Errorf("%w: subcategory name is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO subcategories (id, category_id, name, display_name, description, icon, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.pool.Exec(ctx, query,
		sub.ID, categoryID, sub.Name, sub.DisplayName, sub.Description, sub.Icon, sub.IsActive, sub.SortOrder,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: subcategory %q in category %q", ErrAlreadyExists, sub.Name, categoryID)
		}
		return fmt.Errorf("failed to insert subcategory: %w", err)
	}
	return nil
}

// ListCategories returns the taxonomy with subcategories attached, ordered
// by sort order.
func (db *PostgresStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, name, display_name, description, icon, is_active, sort_order
		FROM categories ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	index := make(map[string]int)
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.DisplayName, &cat.Description, &cat.Icon, &cat.IsActive, &cat.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		index[cat.ID] = len(categories)
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	subRows, err := db.pool.Query(ctx, `
		SELECT id, category_id, name, display_name, description, icon, is_active, sort_order
		FROM subcategories ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subcategories: %w", err)
	}
	defer subRows.Close()

	for subRows.Next() {
		var sub models.Subcategory
		if err := subRows.Scan(&sub.ID, &sub.CategoryID, &sub.Name, &sub.DisplayName, &sub.Description, &sub.Icon, &sub.IsActive, &sub.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan subcategory row: %w", err)
		}
		if i, ok := index[sub.CategoryID]; ok {
			categories[i].Subcategories = append(categories[i].Subcategories, sub)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return categories, nil
}

// Close releases the connection pool.
func (db *PostgresStore) Close() error {
	db.pool.Close()
	return nil
}

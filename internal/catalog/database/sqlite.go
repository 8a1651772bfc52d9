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

	"modernc.org/sqlite"

	"github.com/offbit-ai/zeal-catalog/internal/catalog/models"
)

// SQLiteStore implements the Database interface on an embedded SQLite
// file. Embedding vectors are stored as JSON text and cosine distance is
// computed in-process, so search results rank exactly as they do on the
// PostgreSQL backend.
type SQLiteStore struct {
	db   *sql.DB
	dims int
}

// NewSQLiteStore opens (or creates) the database file and runs the schema
// migration. dims is the configured embedding dimensionality.
func NewSQLiteStore(ctx context.Context, path string, dims int) (*SQLiteStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", ErrInvalidInput)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent ingestion.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	store := &SQLiteStore{db: db, dims: dims}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			version TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			subcategory TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS repository_entries (
			template_id TEXT PRIMARY KEY REFERENCES templates(id) ON DELETE CASCADE,
			title_embedding TEXT,
			description_embedding TEXT,
			combined_embedding TEXT,
			capabilities_embedding TEXT,
			usecase_embedding TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			search_text TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL DEFAULT '',
			usage_count INTEGER NOT NULL DEFAULT 0,
			success_count INTEGER NOT NULL DEFAULT 0,
			avg_execution_ms REAL NOT NULL DEFAULT 0,
			avg_rating REAL NOT NULL DEFAULT 0,
			error_rate REAL NOT NULL DEFAULT 0,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			type TEXT NOT NULL,
			PRIMARY KEY (source_id, target_id, type)
		)`,
		`CREATE TABLE IF NOT EXISTS template_versions (
			template_id TEXT NOT NULL,
			version TEXT NOT NULL,
			breaking INTEGER NOT NULL DEFAULT 0,
			deprecated INTEGER NOT NULL DEFAULT 0,
			changes TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (template_id, version)
		)`,
		`CREATE TABLE IF NOT EXISTS usage_events (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			action TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 1,
			execution_ms INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			occurred_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS usage_events_template_idx ON usage_events (template_id)`,
		`CREATE TABLE IF NOT EXISTS dynamic_templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_kind TEXT NOT NULL,
			source_definition TEXT NOT NULL,
			generation_rules TEXT NOT NULL DEFAULT '',
			generated_template_id TEXT NOT NULL DEFAULT '',
			generated_at TIMESTAMP,
			validation_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS subcategories (
			id TEXT PRIMARY KEY,
			category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			display_name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			sort_order INTEGER NOT NULL DEFAULT 0,
			UNIQUE (category_id, name)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) inTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isSQLiteConstraint(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLITE_CONSTRAINT and its extended codes.
		return liteErr.Code()&0xff == 19
	}
	return false
}

// CreateTemplate inserts a new template. Duplicate ids return
// ErrAlreadyExists.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl *models.Template) (*models.Template, error) {
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

	valueJSON, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	tagsJSON, err := json.Marshal(stored.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (id, version, status, title, category, subcategory, tags, created_at, updated_at, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.Version, string(stored.Status), stored.Title, stored.Category, stored.Subcategory,
		string(tagsJSON), stored.CreatedAt, stored.UpdatedAt, string(valueJSON))
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, fmt.Errorf("%w: template %q", ErrAlreadyExists, stored.ID)
		}
		return nil, fmt.Errorf("failed to insert template: %w", err)
	}
	return &stored, nil
}

// UpdateTemplate merges the patch over the stored record.
func (s *SQLiteStore) UpdateTemplate(ctx context.Context, id string, patch *models.Template) (*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var merged *models.Template
	err := s.inTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := scanTemplateValue(tx.QueryRowContext(ctx, `SELECT value FROM templates WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: template %q", ErrNotFound, id)
		}

		merged = mergeTemplate(existing, patch)

		valueJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to marshal template: %w", err)
		}
		tagsJSON, err := json.Marshal(merged.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE templates
			SET version = ?, status = ?, title = ?, category = ?, subcategory = ?,
			    tags = ?, updated_at = ?, value = ?
			WHERE id = ?
		`, merged.Version, string(merged.Status), merged.Title, merged.Category, merged.Subcategory,
			string(tagsJSON), merged.UpdatedAt, string(valueJSON), id)
		if err != nil {
			return fmt.Errorf("failed to update template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplateValue(row rowScanner) (*models.Template, error) {
	var valueJSON string
	if err := row.Scan(&valueJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	var tpl models.Template
	if err := json.Unmarshal([]byte(valueJSON), &tpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	return &tpl, nil
}

// GetTemplate returns (nil, nil) when the id is unknown.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return scanTemplateValue(s.db.QueryRowContext(ctx, `SELECT value FROM templates WHERE id = ?`, id))
}

// DeleteTemplate removes the template row; the repository entry cascades.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	return nil
}

// ListTemplates returns templates matching the filter, most recently
// updated first. Tag filtering happens in Go since tags are stored as a
// JSON array.
func (s *SQLiteStore) ListTemplates(ctx context.Context, filter *models.TemplateFilter) ([]*models.Template, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var whereConditions []string
	args := []any{}

	if filter != nil {
		if filter.Status != nil {
			whereConditions = append(whereConditions, "status = ?")
			args = append(args, string(*filter.Status))
		}
		if filter.Category != nil {
			whereConditions = append(whereConditions, "category = ?")
			args = append(args, *filter.Category)
		}
		if filter.Subcategory != nil {
			whereConditions = append(whereConditions, "subcategory = ?")
			args = append(args, *filter.Subcategory)
		}
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT value FROM templates %s ORDER BY updated_at DESC, id`, whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var results []*models.Template
	for rows.Next() {
		tpl, err := scanTemplateValue(rows)
		if err != nil {
			return nil, err
		}
		if filter != nil && !hasAllTags(tpl.Tags, filter.Tags) {
			continue
		}
		results = append(results, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if filter != nil && filter.Limit > 0 {
		results = paginateTemplates(results, filter.Limit, filter.Offset)
	}
	return results, nil
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func paginateTemplates(templates []*models.Template, limit, offset int) []*models.Template {
	if offset >= len(templates) {
		return nil
	}
	templates = templates[offset:]
	if limit > 0 && limit < len(templates) {
		templates = templates[:limit]
	}
	return templates
}

// UpsertRepository writes the template row and the repository entry as a
// single transaction, preserving stats and creation timestamps on
// conflict.
func (s *SQLiteStore) UpsertRepository(ctx context.Context, entry *models.RepositoryEntry) error {
	if entry == nil || entry.TemplateID == "" {
		return fmt.Errorf("%w: repository entry requires a template id", ErrInvalidInput)
	}
	if !entry.Embeddings.Uniform(s.dims) {
		return fmt.Errorf("%w: embeddings must have dimension %d", ErrInvalidInput, s.dims)
	}

	return s.inTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
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
		tagsJSON, err := json.Marshal(tpl.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO templates (id, version, status, title, category, subcategory, tags, created_at, updated_at, value)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				version = excluded.version,
				status = excluded.status,
				title = excluded.title,
				category = excluded.category,
				subcategory = excluded.subcategory,
				tags = excluded.tags,
				updated_at = excluded.updated_at,
				value = excluded.value
		`, tpl.ID, tpl.Version, string(tpl.Status), tpl.Title, tpl.Category, tpl.Subcategory,
			string(tagsJSON), tpl.CreatedAt, tpl.UpdatedAt, string(valueJSON))
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
			encoded, err := encodeVector(vec)
			if err != nil {
				return err
			}
			vectors = append(vectors, encoded)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO repository_entries (
				template_id, title_embedding, description_embedding, combined_embedding,
				capabilities_embedding, usecase_embedding, metadata, search_text, checksum,
				created_at, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (template_id) DO UPDATE SET
				title_embedding = excluded.title_embedding,
				description_embedding = excluded.description_embedding,
				combined_embedding = excluded.combined_embedding,
				capabilities_embedding = excluded.capabilities_embedding,
				usecase_embedding = excluded.usecase_embedding,
				metadata = excluded.metadata,
				search_text = excluded.search_text,
				checksum = excluded.checksum,
				updated_at = excluded.updated_at
		`, entry.TemplateID, vectors[0], vectors[1], vectors[2], vectors[3], vectors[4],
			string(metadataJSON), entry.SearchText, entry.Checksum, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert repository entry: %w", err)
		}
		return nil
	})
}

// GetRepository returns (nil, nil) when no entry exists for the id.
func (s *SQLiteStore) GetRepository(ctx context.Context, templateID string) (*models.RepositoryEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query := `
		SELECT t.value,
		       e.title_embedding, e.description_embedding, e.combined_embedding,
		       e.capabilities_embedding, e.usecase_embedding,
		       e.metadata, e.search_text, e.checksum,
		       e.usage_count, e.success_count, e.avg_execution_ms, e.avg_rating, e.error_rate,
		       e.last_used_at, e.created_at, e.updated_at
		FROM repository_entries e
		JOIN templates t ON t.id = e.template_id
		WHERE e.template_id = ?
	`

	var (
		valueJSON    string
		vectorTexts  [5]sql.NullString
		metadataJSON string
		entry        models.RepositoryEntry
		lastUsedAt   sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, templateID).Scan(
		&valueJSON,
		&vectorTexts[0], &vectorTexts[1], &vectorTexts[2], &vectorTexts[3], &vectorTexts[4],
		&metadataJSON, &entry.SearchText, &entry.Checksum,
		&entry.Stats.UsageCount, &entry.Stats.SuccessCount, &entry.Stats.AvgExecutionMS,
		&entry.Stats.AvgRating, &entry.Stats.ErrorRate,
		&lastUsedAt, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get repository entry: %w", err)
	}

	if err := json.Unmarshal([]byte(valueJSON), &entry.Template); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
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

	rels, err := s.GetRelatedTemplates(ctx, templateID)
	if err != nil {
		return nil, err
	}
	entry.Relationships = rels

	return &entry, nil
}

// UpdateRepositoryStats patches the derived record without touching the
// template.
func (s *SQLiteStore) UpdateRepositoryStats(ctx context.Context, templateID string, stats *models.EntryStats) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if stats == nil {
		return fmt.Errorf("%w: stats are required", ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE repository_entries
		SET usage_count = ?, success_count = ?, avg_execution_ms = ?,
		    avg_rating = ?, error_rate = ?, last_used_at = ?, updated_at = ?
		WHERE template_id = ?
	`, stats.UsageCount, stats.SuccessCount, stats.AvgExecutionMS,
		stats.AvgRating, stats.ErrorRate, stats.LastUsedAt, time.Now().UTC(), templateID)
	if err != nil {
		return fmt.Errorf("failed to update repository stats: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: repository entry %q", ErrNotFound, templateID)
	}
	return nil
}

// ResetStats zeroes the entry's counters.
func (s *SQLiteStore) ResetStats(ctx context.Context, templateID string) error {
	return s.UpdateRepositoryStats(ctx, templateID, &models.EntryStats{})
}

// SearchTemplates is the lexical search path, ranked by the shared scoring
// helpers.
func (s *SQLiteStore) SearchTemplates(ctx context.Context, query *models.SearchQuery) ([]models.SearchHit, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if query == nil || strings.TrimSpace(query.Query) == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}

	term := strings.ToLower(strings.TrimSpace(query.Query))

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.value, e.search_text
		FROM repository_entries e
		JOIN templates t ON t.id = e.template_id
		WHERE e.search_text LIKE '%' || ? || '%'
	`, term)
	if err != nil {
		return nil, fmt.Errorf("failed to query search candidates: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var valueJSON, searchText string
		if err := rows.Scan(&valueJSON, &searchText); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		var tpl models.Template
		if err := json.Unmarshal([]byte(valueJSON), &tpl); err != nil {
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

// SearchByEmbedding scans every combined embedding and ranks by cosine
// distance in-process. The catalog is small enough that a full scan stays
// well under interactive latency.
func (s *SQLiteStore) SearchByEmbedding(ctx context.Context, vector []float32, query *models.SearchQuery) ([]models.SearchHit, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query vector must have dimension %d", ErrInvalidInput, s.dims)
	}
	if query == nil {
		query = &models.SearchQuery{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.value, e.combined_embedding
		FROM repository_entries e
		JOIN templates t ON t.id = e.template_id
		WHERE e.combined_embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query by embedding: %w", err)
	}
	defer rows.Close()

	var hits []models.SearchHit
	for rows.Next() {
		var valueJSON, embeddingJSON string
		if err := rows.Scan(&valueJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan embedding row: %w", err)
		}
		var tpl models.Template
		if err := json.Unmarshal([]byte(valueJSON), &tpl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template: %w", err)
		}
		if !matchesFilters(&tpl, query) {
			continue
		}
		stored, err := decodeVector(embeddingJSON)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{Template: tpl, Score: 1 - cosineDistance(vector, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Template.ID < hits[j].Template.ID
	})

	return paginate(hits, query.Limit, query.Offset), nil
}

// CreateVersion appends an immutable version record.
func (s *SQLiteStore) CreateVersion(ctx context.Context, record *models.VersionRecord) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO template_versions (template_id, version, breaking, deprecated, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, record.TemplateID, record.Version, record.Breaking, record.Deprecated, string(changesJSON), createdAt)
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("%w: version %s of template %q", ErrAlreadyExists, record.Version, record.TemplateID)
		}
		return fmt.Errorf("failed to insert version record: %w", err)
	}
	return nil
}

// GetVersions returns the version history, newest first.
func (s *SQLiteStore) GetVersions(ctx context.Context, templateID string) ([]models.VersionRecord, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT template_id, version, breaking, deprecated, changes, created_at
		FROM template_versions
		WHERE template_id = ?
		ORDER BY created_at DESC
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var records []models.VersionRecord
	for rows.Next() {
		var rec models.VersionRecord
		var changesJSON string
		if err := rows.Scan(&rec.TemplateID, &rec.Version, &rec.Breaking, &rec.Deprecated, &changesJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		if err := json.Unmarshal([]byte(changesJSON), &rec.Changes); err != nil {
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
func (s *SQLiteStore) CreateDynamicTemplate(ctx context.Context, dyn *models.DynamicTemplate) (*models.DynamicTemplate, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dynamic_templates (id, name, source_kind, source_definition, generation_rules,
			generated_template_id, generated_at, validation_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.Name, string(stored.SourceKind), stored.SourceDefinition,
		stored.GenerationRules, stored.GeneratedTemplateID, stored.GeneratedAt,
		string(stored.ValidationStatus), stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil, fmt.Errorf("%w: dynamic template %q", ErrAlreadyExists, stored.ID)
		}
		return nil, fmt.Errorf("failed to insert dynamic template: %w", err)
	}
	return &stored, nil
}

// UpdateDynamicTemplate patches only the supplied fields.
func (s *SQLiteStore) UpdateDynamicTemplate(ctx context.Context, id string, patch *models.DynamicTemplateUpdate) (*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if patch == nil {
		return nil, fmt.Errorf("%w: update patch is required", ErrInvalidInput)
	}

	var updated *models.DynamicTemplate
	err := s.inTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := scanDynamicRow(tx.QueryRowContext(ctx,
			dynamicColumns+` FROM dynamic_templates WHERE id = ?`, id))
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: dynamic template %q", ErrNotFound, id)
		}

		updated = applyDynamicUpdate(existing, patch)

		_, err = tx.ExecContext(ctx, `
			UPDATE dynamic_templates
			SET generated_template_id = ?, generated_at = ?, validation_status = ?, updated_at = ?
			WHERE id = ?
		`, updated.GeneratedTemplateID, updated.GeneratedAt, string(updated.ValidationStatus), updated.UpdatedAt, id)
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

const dynamicColumns = `
	SELECT id, name, source_kind, source_definition, generation_rules,
	       generated_template_id, generated_at, validation_status, created_at, updated_at`

func scanDynamicRow(row rowScanner) (*models.DynamicTemplate, error) {
	var dyn models.DynamicTemplate
	var sourceKind, validationStatus string
	var generatedAt sql.NullTime

	err := row.Scan(
		&dyn.ID, &dyn.Name, &sourceKind, &dyn.SourceDefinition, &dyn.GenerationRules,
		&dyn.GeneratedTemplateID, &generatedAt, &validationStatus, &dyn.CreatedAt, &dyn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) GetDynamicTemplate(ctx context.Context, id string) (*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return scanDynamicRow(s.db.QueryRowContext(ctx, dynamicColumns+` FROM dynamic_templates WHERE id = ?`, id))
}

// ListDynamicTemplates returns every dynamic template, newest first.
func (s *SQLiteStore) ListDynamicTemplates(ctx context.Context) ([]*models.DynamicTemplate, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := s.db.QueryContext(ctx, dynamicColumns+` FROM dynamic_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dynamic templates: %w", err)
	}
	defer rows.Close()

	var results []*models.DynamicTemplate
	for rows.Next() {
		dyn, err := scanDynamicRow(rows)
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
func (s *SQLiteStore) UpdateRelationships(ctx context.Context, templateID string, rels []models.Relationship) error {
	if templateID == "" {
		return fmt.Errorf("%w: template id is required", ErrInvalidInput)
	}

	rels = dedupeRelationships(rels)

	return s.inTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE source_id = ?`, templateID); err != nil {
			return fmt.Errorf("failed to clear relationships: %w", err)
		}
		for _, rel := range rels {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO relationships (source_id, target_id, type) VALUES (?, ?, ?)`,
				templateID, rel.TargetID, string(rel.Type))
			if err != nil {
				return fmt.Errorf("failed to insert relationship: %w", err)
			}
		}
		return nil
	})
}

// GetRelatedTemplates returns the outgoing edges for a template.
func (s *SQLiteStore) GetRelatedTemplates(ctx context.Context, templateID string) ([]models.Relationship, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, type FROM relationships WHERE source_id = ? ORDER BY type, target_id`, templateID)
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
func (s *SQLiteStore) RecordUsage(ctx context.Context, event *models.UsageEvent) error {
	if event == nil || event.TemplateID == "" {
		return fmt.Errorf("%w: usage event requires a template id", ErrInvalidInput)
	}

	return s.inTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}

		occurredAt := event.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = time.Now().UTC()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO usage_events (id, template_id, action, success, execution_ms, metadata, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, event.ID, event.TemplateID, event.Action, event.Success, event.ExecutionMS, string(metadataJSON), occurredAt)
		if err != nil {
			return fmt.Errorf("failed to insert usage event: %w", err)
		}

		successDelta := 0
		if event.Success {
			successDelta = 1
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE repository_entries
			SET usage_count = usage_count + 1,
			    success_count = success_count + ?,
			    avg_execution_ms = (avg_execution_ms * usage_count + ?) / (usage_count + 1),
			    error_rate = CAST(usage_count + 1 - (success_count + ?) AS REAL) / (usage_count + 1),
			    last_used_at = ?,
			    updated_at = ?
			WHERE template_id = ?
		`, successDelta, event.ExecutionMS, successDelta, occurredAt, time.Now().UTC(), event.TemplateID)
		if err != nil {
			return fmt.Errorf("failed to update usage counters: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update usage counters: %w", err)
		}
		if affected == 0 {
			// Rolls back the event insert too; an event without an entry
			// to count against would silently skew the stats.
			return fmt.Errorf("%w: no repository entry for template %q", ErrNotFound, event.TemplateID)
		}
		return nil
	})
}

// GetUsageStats aggregates usage events for one template. Returns zeroed
// stats, not an error, when no usage exists.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, templateID string) (*models.UsageStats, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	stats := &models.UsageStats{TemplateID: templateID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(execution_ms), 0)
		FROM usage_events
		WHERE template_id = ?
	`, templateID).Scan(&stats.TotalCount, &stats.SuccessCount, &stats.AvgExecutionMS)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage stats: %w", err)
	}

	// MAX() would erase the column's declared type, so fetch the newest
	// event directly.
	var lastUsed time.Time
	err = s.db.QueryRowContext(ctx, `
		SELECT occurred_at FROM usage_events
		WHERE template_id = ?
		ORDER BY occurred_at DESC LIMIT 1
	`, templateID).Scan(&lastUsed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to read last usage: %w", err)
	default:
		stats.LastUsedAt = &lastUsed
	}
	return stats, nil
}

// UpsertCategory creates the category or updates it in place by unique
// name, preserving the existing id.
func (s *SQLiteStore) UpsertCategory(ctx context.Context, cat *models.Category) (*models.Category, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if cat == nil || cat.Name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}

	stored := *cat
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, display_name, description, icon, is_active, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			icon = excluded.icon,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order
		RETURNING id
	`, cat.ID, cat.Name, cat.DisplayName, cat.Description, cat.Icon, cat.IsActive, cat.SortOrder).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert category: %w", err)
	}
	return &stored, nil
}

// CreateSubcategory inserts a subcategory; a duplicate (category id, name)
// returns ErrAlreadyExists for the caller to decide about.
func (s *SQLiteStore) CreateSubcategory(ctx context.Context, categoryID string, sub *models.Subcategory) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if sub == nil || sub.Name == "" {
		return fmt.Errorf("%w: subcategory name is required", ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subcategories (id, category_id, name, display_name, description, icon, is_active, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.ID, categoryID, sub.Name, sub.DisplayName, sub.Description, sub.Icon, sub.IsActive, sub.SortOrder)
	if err != nil {
		if isSQLiteConstraint(err) {
			return fmt.Errorf("%w: subcategory %q in category %q", ErrAlreadyExists, sub.Name, categoryID)
		}
		return fmt.Errorf("failed to insert subcategory: %w", err)
	}
	return nil
}

// ListCategories returns the taxonomy with subcategories attached, ordered
// by sort order.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	rows, err := s.db.QueryContext(ctx, `
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

	subRows, err := s.db.QueryContext(ctx, `
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

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/franckalain/macrotrack/internal/models"
)

//go:embed schema.sql
var schemaFS embed.FS

// DB interface defines the methods our database should implement
type DB interface {
	SaveFoodEntry(ctx context.Context, entry *models.FoodEntry) error
	GetFoodEntry(ctx context.Context, id string) (*models.FoodEntry, error)
	DeleteFoodEntry(ctx context.Context, id string) (bool, error)
	RecentFoodEntries(ctx context.Context, limit int) ([]*models.FoodEntry, error)
	FoodEntriesBetween(ctx context.Context, from, to time.Time) ([]*models.FoodEntry, error)
	SaveGoals(ctx context.Context, goals *models.MacroGoals) error
	GetGoals(ctx context.Context) (*models.MacroGoals, error)
	Close() error
}

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// connPragmas run on every pooled connection, not just the first one.
var connPragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// dsn appends the connection pragmas to dbPath in modernc's _pragma form.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dbPath)
	for _, p := range connPragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string, logger *zap.Logger) (*SQLiteDB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// one writer at a time; concurrent callers queue on the pool
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	logger.Info("database schema initialized", zap.String("path", dbPath))
	return &SQLiteDB{db: db, logger: logger}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

const entryColumns = `id, name, description, amount_grams, calories, protein, carbs, fat,
	details, source, consumed_at, created_at, updated_at`

// SaveFoodEntry inserts or replaces a food entry
func (s *SQLiteDB) SaveFoodEntry(ctx context.Context, entry *models.FoodEntry) error {
	query := `
		INSERT INTO food_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			amount_grams = excluded.amount_grams,
			calories = excluded.calories,
			protein = excluded.protein,
			carbs = excluded.carbs,
			fat = excluded.fat,
			details = excluded.details,
			source = excluded.source,
			consumed_at = excluded.consumed_at,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.ConsumedAt.IsZero() {
		entry.ConsumedAt = now
	}
	entry.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.Name, entry.Description, entry.AmountGrams,
		entry.Calories, entry.Protein, entry.Carbs, entry.Fat,
		entry.Details, entry.Source,
		entry.ConsumedAt.UnixMilli(), entry.CreatedAt.UnixMilli(), entry.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("error saving food entry %s: %w", entry.ID, err)
	}
	return nil
}

// GetFoodEntry returns nil, nil when no entry has the id
func (s *SQLiteDB) GetFoodEntry(ctx context.Context, id string) (*models.FoodEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM food_entries WHERE id = ?`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading food entry %s: %w", id, err)
	}
	return entry, nil
}

// DeleteFoodEntry reports whether an entry was removed
func (s *SQLiteDB) DeleteFoodEntry(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM food_entries WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("error deleting food entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecentFoodEntries returns the latest entries, newest first
func (s *SQLiteDB) RecentFoodEntries(ctx context.Context, limit int) ([]*models.FoodEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM food_entries
		ORDER BY consumed_at DESC, created_at DESC
		LIMIT ?
	`
	return s.queryEntries(ctx, query, limit)
}

// FoodEntriesBetween returns entries consumed in [from, to), oldest first
func (s *SQLiteDB) FoodEntriesBetween(ctx context.Context, from, to time.Time) ([]*models.FoodEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM food_entries
		WHERE consumed_at >= ? AND consumed_at < ?
		ORDER BY consumed_at ASC
	`
	return s.queryEntries(ctx, query, from.UnixMilli(), to.UnixMilli())
}

func (s *SQLiteDB) queryEntries(ctx context.Context, query string, args ...any) ([]*models.FoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying food entries: %w", err)
	}
	defer rows.Close()

	var results []*models.FoodEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning food entry: %w", err)
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*models.FoodEntry, error) {
	var e models.FoodEntry
	var consumedAt, createdAt, updatedAt int64
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.AmountGrams,
		&e.Calories, &e.Protein, &e.Carbs, &e.Fat,
		&e.Details, &e.Source, &consumedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ConsumedAt = time.UnixMilli(consumedAt)
	e.CreatedAt = time.UnixMilli(createdAt)
	e.UpdatedAt = time.UnixMilli(updatedAt)
	return &e, nil
}

// SaveGoals replaces the daily macro goals
func (s *SQLiteDB) SaveGoals(ctx context.Context, goals *models.MacroGoals) error {
	query := `
		INSERT INTO macro_goals (id, calories, protein, carbs, fat, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			calories = excluded.calories,
			protein = excluded.protein,
			carbs = excluded.carbs,
			fat = excluded.fat,
			updated_at = excluded.updated_at
	`
	goals.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, query,
		goals.Calories, goals.Protein, goals.Carbs, goals.Fat, goals.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("error saving goals: %w", err)
	}
	return nil
}

// GetGoals returns zero goals when none were saved
func (s *SQLiteDB) GetGoals(ctx context.Context) (*models.MacroGoals, error) {
	var g models.MacroGoals
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT calories, protein, carbs, fat, updated_at FROM macro_goals WHERE id = 1`,
	).Scan(&g.Calories, &g.Protein, &g.Carbs, &g.Fat, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.MacroGoals{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading goals: %w", err)
	}
	g.UpdatedAt = time.UnixMilli(updatedAt)
	return &g, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"animetracker/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the Postgres repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS anime (
	id         BIGSERIAL PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	rating     DOUBLE PRECISION NOT NULL DEFAULT 0,
	genres     TEXT[] NOT NULL DEFAULT '{}',
	image      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const animeColumns = `id, title, status, rating, genres, image, created_at`

// sortColumns whitelists ORDER BY expressions.
var sortColumns = map[models.SortField]string{
	models.SortByTitle:  "lower(title)",
	models.SortByGenre:  "lower(COALESCE(genres[1], ''))",
	models.SortByStatus: "CASE status WHEN 'Planned' THEN 0 WHEN 'Watching' THEN 1 WHEN 'Completed' THEN 2 WHEN 'Dropped' THEN 3 ELSE 4 END",
	models.SortByRating: "rating",
}

type postgresAnimeRepository struct {
	db DB
}

func NewPostgresAnimeRepository(db DB) AnimeRepository {
	return &postgresAnimeRepository{db: db}
}

// EnsureSchema creates the anime table if it does not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create anime table: %w", err)
	}
	return nil
}

func (r *postgresAnimeRepository) List(ctx context.Context, filter models.FilterSpec) ([]models.AnimeEntry, int, error) {
	filter = filter.Normalized()
	pattern := likePattern(filter.Search)

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM anime WHERE ($1 = '' OR title ILIKE $1)`, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count anime: %w", err)
	}

	offset, ok := pageStart(filter, total)
	if !ok {
		return []models.AnimeEntry{}, total, nil
	}

	query := `
	SELECT ` + animeColumns + `
	FROM anime
	WHERE ($1 = '' OR title ILIKE $1)
	ORDER BY ` + orderClause(filter.SortBy, filter.SortDescending) + `
	LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, pattern, filter.PageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list anime: %w", err)
	}
	defer rows.Close()

	entries := []models.AnimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan anime: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list anime: %w", err)
	}
	return entries, total, nil
}

func (r *postgresAnimeRepository) GetByID(ctx context.Context, id string) (*models.AnimeEntry, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}

	row := r.db.QueryRow(ctx, `SELECT `+animeColumns+` FROM anime WHERE id = $1`, key)
	e, err := scanEntry(row)
	if err != nil {
		return nil, notFoundOr(err, "failed to get anime")
	}
	return e, nil
}

func (r *postgresAnimeRepository) Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
	insertQuery := `
	INSERT INTO anime (title, status, rating, genres, image, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + animeColumns

	row := r.db.QueryRow(ctx, insertQuery,
		strings.TrimSpace(draft.Title), string(draft.Status), draft.Rating, genresOf(draft), draft.Image, time.Now().UTC())
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create anime: %w", err)
	}
	return e, nil
}

func (r *postgresAnimeRepository) Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}

	updateQuery := `
	UPDATE anime
	SET title = $2, status = $3, rating = $4, genres = $5, image = $6
	WHERE id = $1
	RETURNING ` + animeColumns

	row := r.db.QueryRow(ctx, updateQuery,
		key, strings.TrimSpace(draft.Title), string(draft.Status), draft.Rating, genresOf(draft), draft.Image)
	e, err := scanEntry(row)
	if err != nil {
		return nil, notFoundOr(err, "failed to update anime")
	}
	return e, nil
}

func (r *postgresAnimeRepository) Delete(ctx context.Context, id string) error {
	key, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM anime WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete anime: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*models.AnimeEntry, error) {
	var (
		id     int64
		status string
		e      models.AnimeEntry
	)
	if err := row.Scan(&id, &e.Title, &status, &e.Rating, &e.Genres, &e.Image, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ID = strconv.FormatInt(id, 10)
	e.Status = models.Status(status)
	e.CreatedAt = e.CreatedAt.UTC()
	if e.Genres == nil {
		e.Genres = []string{}
	}
	return &e, nil
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func genresOf(d models.Draft) []string {
	if d.Genres == nil {
		return []string{}
	}
	return d.Genres
}

// orderClause always ends with id so pages are stable across ties.
func orderClause(by models.SortField, desc bool) string {
	col, ok := sortColumns[by]
	if !ok {
		col = sortColumns[models.SortByTitle]
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return col + " " + dir + ", id ASC"
}

// likePattern turns a search term into a substring ILIKE pattern with the
// wildcard characters in term escaped. An empty term yields "".
func likePattern(term string) string {
	term = strings.TrimSpace(term)
	if term == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

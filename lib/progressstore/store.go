// Package progressstore ledgers reading progress: book records,
// append-only progress snapshots, a day-keyed pages-read aggregate
// with goal tracking, and mutable settings.
package progressstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

const (
	SettingDailyPageGoal = "daily_page_goal"
	SettingDayResetHour  = "day_reset_hour"

	DefaultDailyPageGoal = 30
	DefaultDayResetHour  = 4
)

var ErrNotFound = errors.New("book not found")

type Store struct {
	db *sql.DB
	// now is replaceable so day-boundary behavior is testable
	now func() time.Time
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		now: time.Now,
	}
}

type Book struct {
	ID         string
	Title      string
	Authors    []string
	TotalPages int64
	CoverURL   string
}

type Snapshot struct {
	Position   int64
	Percent    float64
	RecordedAt time.Time
}

type LibraryEntry struct {
	Book   Book
	Latest *Snapshot
}

type BookDetail struct {
	Book      Book
	Snapshots []Snapshot
}

type DayStats struct {
	Date           string
	PagesRead      int64
	PageGoal       int64
	GoalMet        bool
	GoalMetAt      *time.Time
	PagesRemaining int64
}

// dayKey attributes any time before the reset hour to the previous
// calendar date.
func dayKey(t time.Time, resetHour int64) string {
	return t.Add(-time.Duration(resetHour) * time.Hour).Format("2006-01-02")
}

// UpsertBook merges by id: absent optional fields never overwrite a
// previously known value.
func (s Store) UpsertBook(ctx context.Context, book Book) error {
	authors, err := json.Marshal(book.Authors)
	if err != nil {
		return err
	}
	if book.Authors == nil {
		authors = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		insert into books (id, title, authors, total_pages, cover_url, last_updated)
		values (?, ?, ?, ?, ?, ?)
		on conflict(id) do update set
			title = case when excluded.title != '' then excluded.title else books.title end,
			authors = case when excluded.authors != '[]' then excluded.authors else books.authors end,
			total_pages = case when excluded.total_pages > 0 then excluded.total_pages else books.total_pages end,
			cover_url = case when excluded.cover_url != '' then excluded.cover_url else books.cover_url end,
			last_updated = excluded.last_updated
	`, book.ID, book.Title, string(authors), book.TotalPages, book.CoverURL, s.now().Unix())
	return err
}

// RecordProgress always appends a snapshot. The daily aggregate only
// moves when a prior snapshot exists for the book and the position
// increased: the very first observation of a book is backlog, not
// reading done today.
func (s Store) RecordProgress(ctx context.Context, bookID string, position int64, percent float64) error {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var prev int64
	hasPrev := true
	err = tx.QueryRowContext(ctx, `
		select position from reading_progress
		where book_id = ?
		order by recorded_at desc, id desc
		limit 1
	`, bookID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		hasPrev = false
	} else if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		insert into reading_progress (book_id, position, percent_complete, recorded_at)
		values (?, ?, ?, ?)
	`, bookID, position, percent, now.Unix())
	if err != nil {
		return err
	}

	if hasPrev && position > prev {
		err = s.addToDaily(ctx, tx, now, position-prev)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s Store) addToDaily(ctx context.Context, tx *sql.Tx, now time.Time, delta int64) error {
	resetHour, err := txIntSetting(ctx, tx, SettingDayResetHour, DefaultDayResetHour)
	if err != nil {
		return err
	}
	goal, err := txIntSetting(ctx, tx, SettingDailyPageGoal, DefaultDailyPageGoal)
	if err != nil {
		return err
	}
	date := dayKey(now, resetHour)

	_, err = tx.ExecContext(ctx, `
		insert into daily_stats (date, pages_read, last_updated)
		values (?, ?, ?)
		on conflict(date) do update set
			pages_read = daily_stats.pages_read + excluded.pages_read,
			last_updated = excluded.last_updated
	`, date, delta, now.Unix())
	if err != nil {
		return err
	}

	var pagesRead int64
	var goalMetAt sql.NullInt64
	err = tx.QueryRowContext(ctx, `
		select pages_read, goal_met_at from daily_stats where date = ?
	`, date).Scan(&pagesRead, &goalMetAt)
	if err != nil {
		return err
	}
	if pagesRead >= goal && !goalMetAt.Valid {
		_, err = tx.ExecContext(ctx, `
			update daily_stats set goal_met_at = ? where date = ?
		`, now.Unix(), date)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s Store) TodayStats(ctx context.Context) (DayStats, error) {
	resetHour, err := s.IntSetting(ctx, SettingDayResetHour, DefaultDayResetHour)
	if err != nil {
		return DayStats{}, err
	}
	goal, err := s.IntSetting(ctx, SettingDailyPageGoal, DefaultDailyPageGoal)
	if err != nil {
		return DayStats{}, err
	}

	stats := DayStats{
		Date:     dayKey(s.now(), resetHour),
		PageGoal: goal,
	}

	var goalMetAt sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		select pages_read, goal_met_at from daily_stats where date = ?
	`, stats.Date).Scan(&stats.PagesRead, &goalMetAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return DayStats{}, err
	}
	if goalMetAt.Valid {
		at := time.Unix(goalMetAt.Int64, 0)
		stats.GoalMetAt = &at
		stats.GoalMet = true
	}
	stats.PagesRemaining = max(0, goal-stats.PagesRead)
	return stats, nil
}

// Library returns every book joined with its most recent snapshot.
// Books without any snapshot sort last with a nil Latest.
func (s Store) Library(ctx context.Context) ([]LibraryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select b.id, b.title, b.authors, b.total_pages, b.cover_url,
			p.position, p.percent_complete, p.recorded_at
		from books b
		left join reading_progress p on p.id = (
			select id from reading_progress
			where book_id = b.id
			order by recorded_at desc, id desc
			limit 1
		)
		order by p.recorded_at is null, p.recorded_at desc, b.title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var library []LibraryEntry
	for rows.Next() {
		var entry LibraryEntry
		var authors string
		var position sql.NullInt64
		var percent sql.NullFloat64
		var recordedAt sql.NullInt64

		err = rows.Scan(
			&entry.Book.ID, &entry.Book.Title, &authors,
			&entry.Book.TotalPages, &entry.Book.CoverURL,
			&position, &percent, &recordedAt,
		)
		if err != nil {
			return nil, err
		}
		err = json.Unmarshal([]byte(authors), &entry.Book.Authors)
		if err != nil {
			slog.WarnContext(ctx, "failed to unmarshal db authors", "book", entry.Book.ID, "err", err)
		}
		if recordedAt.Valid {
			entry.Latest = &Snapshot{
				Position:   position.Int64,
				Percent:    percent.Float64,
				RecordedAt: time.Unix(recordedAt.Int64, 0),
			}
		}
		library = append(library, entry)
	}
	return library, rows.Err()
}

// GetBook returns one book with its snapshot history, most recent
// first. Returns ErrNotFound for an unknown id.
func (s Store) GetBook(ctx context.Context, id string) (BookDetail, error) {
	var detail BookDetail
	var authors string

	err := s.db.QueryRowContext(ctx, `
		select id, title, authors, total_pages, cover_url from books where id = ?
	`, id).Scan(
		&detail.Book.ID, &detail.Book.Title, &authors,
		&detail.Book.TotalPages, &detail.Book.CoverURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return BookDetail{}, ErrNotFound
	}
	if err != nil {
		return BookDetail{}, err
	}
	err = json.Unmarshal([]byte(authors), &detail.Book.Authors)
	if err != nil {
		slog.WarnContext(ctx, "failed to unmarshal db authors", "book", id, "err", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		select position, percent_complete, recorded_at
		from reading_progress
		where book_id = ?
		order by recorded_at desc, id desc
	`, id)
	if err != nil {
		return BookDetail{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var snap Snapshot
		var recordedAt int64
		err = rows.Scan(&snap.Position, &snap.Percent, &recordedAt)
		if err != nil {
			return BookDetail{}, err
		}
		snap.RecordedAt = time.Unix(recordedAt, 0)
		detail.Snapshots = append(detail.Snapshots, snap)
	}
	return detail, rows.Err()
}

func (s Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `select value from settings where key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into settings (key, value) values (?, ?)
		on conflict(key) do update set value = excluded.value
	`, key, value)
	return err
}

func (s Store) IntSetting(ctx context.Context, key string, fallback int64) (int64, error) {
	value, err := s.Setting(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseIntSetting(key, value, fallback)
}

func txIntSetting(ctx context.Context, tx *sql.Tx, key string, fallback int64) (int64, error) {
	var value string
	err := tx.QueryRowContext(ctx, `select value from settings where key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return parseIntSetting(key, value, fallback)
}

func parseIntSetting(key, value string, fallback int64) (int64, error) {
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return parsed, nil
}

// ResetDailyStats clears every daily aggregate, goal markers included.
func (s Store) ResetDailyStats(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from daily_stats`)
	return err
}

// ResetAllProgress drops all snapshots and daily aggregates. Book
// records survive.
func (s Store) ResetAllProgress(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `delete from reading_progress`)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `delete from daily_stats`)
	if err != nil {
		return err
	}
	return tx.Commit()
}

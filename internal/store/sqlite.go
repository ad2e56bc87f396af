package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/btcmap-triage/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer at a time; the triage batch writes from several goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Submissions ---

// RecordSubmission stores a processed submission. Recording the same ID again
// replaces the earlier row.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub models.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	var lat, lon sql.NullFloat64
	if sub.Location != nil {
		lat = sql.NullFloat64{Float64: sub.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: sub.Location.Lon, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, issue_number, merchant_name, lat, lon, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET issue_number = excluded.issue_number, merchant_name = excluded.merchant_name,
			lat = excluded.lat, lon = excluded.lon, data = excluded.data`,
		sub.ID, sub.IssueNumber, sub.MerchantName, lat, lon, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// ListSubmissions returns every recorded submission, oldest first.
func (s *SQLiteStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM submissions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		var sub models.Submission
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// --- Verdicts ---

// SaveVerdict stores a verdict, assigning its ID and CreatedAt when unset.
func (s *SQLiteStore) SaveVerdict(ctx context.Context, v *models.Verdict) error {
	if v.ID == "" {
		v.ID = newULID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, submission_id, issue_number, merchant_name, state, final_score, level, recommendation, review_required, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, final_score = excluded.final_score, level = excluded.level,
			recommendation = excluded.recommendation, review_required = excluded.review_required, data = excluded.data`,
		v.ID, v.SubmissionID, v.IssueNumber, v.MerchantName, string(v.State), v.FinalScore,
		string(v.Level), string(v.Recommendation), boolToInt(v.ReviewRequired), string(data), v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

// GetVerdict loads a verdict by its ID, or the latest verdict of a submission
// when id is a submission ID.
func (s *SQLiteStore) GetVerdict(ctx context.Context, id string) (*models.Verdict, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM verdicts WHERE id = ? OR submission_id = ?
		ORDER BY (id = ?) DESC, created_at DESC LIMIT 1`, id, id, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("verdict %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get verdict: %w", err)
	}
	return decodeVerdict(data)
}

// ListVerdicts returns verdicts newest first.
func (s *SQLiteStore) ListVerdicts(ctx context.Context, filter VerdictListFilter) ([]*models.Verdict, error) {
	query := `SELECT data FROM verdicts`
	var conditions []string
	var args []any

	if filter.Recommendation != "" {
		conditions = append(conditions, "recommendation = ?")
		args = append(args, string(filter.Recommendation))
	}
	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, string(filter.Level))
	}
	if filter.SubmissionID != "" {
		conditions = append(conditions, "submission_id = ?")
		args = append(args, filter.SubmissionID)
	}
	if filter.ReviewRequired {
		conditions = append(conditions, "review_required = 1")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []*models.Verdict
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v, err := decodeVerdict(data)
		if err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

func decodeVerdict(data string) (*models.Verdict, error) {
	v := &models.Verdict{}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return v, nil
}

// --- Outreach ---

const outreachColumns = `id, submission_id, channel, recipient, subject, body, status, reply, reply_state, created_at, replied_at`

func (s *SQLiteStore) CreateOutreachMessage(ctx context.Context, msg *models.OutreachMessage) error {
	if msg.ID == "" {
		msg.ID = newULID()
	}
	if msg.Status == "" {
		msg.Status = models.MessageDrafted
	}
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outreach_messages (id, submission_id, channel, recipient, subject, body, status, reply, reply_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SubmissionID, string(msg.Channel), msg.Recipient, msg.Subject, msg.Body,
		string(msg.Status), msg.Reply, string(msg.ReplyState), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create outreach message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatestOutreach(ctx context.Context, submissionID string, ch models.Channel) (*models.OutreachMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+outreachColumns+` FROM outreach_messages
		WHERE submission_id = ? AND channel = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		submissionID, string(ch))
	msg, err := scanOutreach(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outreach for %s on %s: %w", submissionID, ch, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get outreach: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) ListOutreach(ctx context.Context, submissionID string) ([]*models.OutreachMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outreachColumns+` FROM outreach_messages WHERE submission_id = ? ORDER BY created_at, id`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list outreach: %w", err)
	}
	defer rows.Close()

	var msgs []*models.OutreachMessage
	for rows.Next() {
		msg, err := scanOutreach(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outreach: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// RecordOutreachReply attaches a reply to the latest message on a channel.
// state may be empty to leave classification to the outreach provider.
func (s *SQLiteStore) RecordOutreachReply(ctx context.Context, submissionID string, ch models.Channel, reply string, state models.OutreachState) (*models.OutreachMessage, error) {
	msg, err := s.GetLatestOutreach(ctx, submissionID, ch)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE outreach_messages SET reply = ?, reply_state = ?, status = ?, replied_at = ? WHERE id = ?`,
		reply, string(state), string(models.MessageReplied), now, msg.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("record outreach reply: %w", err)
	}
	msg.Reply = reply
	msg.ReplyState = state
	msg.Status = models.MessageReplied
	msg.RepliedAt = &now
	return msg, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutreach(row scanner) (*models.OutreachMessage, error) {
	msg := &models.OutreachMessage{}
	var channel, status, replyState string
	var repliedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.SubmissionID, &channel, &msg.Recipient, &msg.Subject, &msg.Body,
		&status, &msg.Reply, &replyState, &msg.CreatedAt, &repliedAt)
	if err != nil {
		return nil, err
	}
	msg.Channel = models.Channel(channel)
	msg.Status = models.OutreachMessageStatus(status)
	msg.ReplyState = models.OutreachState(replyState)
	if repliedAt.Valid {
		msg.RepliedAt = &repliedAt.Time
	}
	return msg, nil
}

var _ Store = (*SQLiteStore)(nil)

package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/jobsync/internal/model"
)

// DB is the slice of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads digest recipients and records what was sent to them.
type Store struct {
	db DB
}

// NewStore returns a Store over db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const userPageSQL = `
SELECT u.id, u.email, u.username,
       COALESCE(array_agg(DISTINCT jt.title)     FILTER (WHERE jt.title IS NOT NULL), '{}') AS job_titles,
       COALESCE(array_agg(DISTINCT sk.skill)     FILTER (WHERE sk.skill IS NOT NULL), '{}') AS skills,
       COALESCE(array_agg(DISTINCT rt.role_type) FILTER (WHERE rt.role_type IS NOT NULL), '{}') AS role_types
FROM users u
JOIN user_job_preferences p ON p.user_id = u.id
LEFT JOIN user_job_preference_titles jt ON jt.preference_id = p.id
LEFT JOIN user_job_preference_skills sk ON sk.preference_id = p.id
LEFT JOIN user_job_preference_role_types rt ON rt.preference_id = p.id
WHERE u.id > $1
  AND p.email_enabled = TRUE
  AND u.email IS NOT NULL
  AND u.account_enabled = TRUE
GROUP BY u.id, u.email, u.username
ORDER BY u.id ASC
LIMIT $2`

// UserPage returns up to limit eligible users with an id greater than
// after, in ascending id order.
func (s *Store) UserPage(ctx context.Context, after int64, limit int) ([]model.User, error) {
	rows, err := s.db.Query(ctx, userPageSQL, after, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch users after %d", after)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		var (
			u        model.User
			username *string
		)
		if err := rows.Scan(&u.ID, &u.Email, &username, &u.JobTitles, &u.Skills, &u.RoleTypes); err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		u.Username = model.Deref(username)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "fetch users after %d", after)
	}
	return users, nil
}

// RecordSent writes one email_log row per job. Rows already present are
// left alone, so recording the same send twice is harmless.
func (s *Store) RecordSent(ctx context.Context, userID int64, jobIDs []int64) error {
	if len(jobIDs) == 0 {
		return nil
	}
	sql, args := buildSendLog(userID, jobIDs)
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return errors.Wrapf(err, "record %d sent jobs for user %d", len(jobIDs), userID)
	}
	return nil
}

func buildSendLog(userID int64, jobIDs []int64) (string, []any) {
	args := make([]any, 0, len(jobIDs)+1)
	args = append(args, userID)
	values := make([]string, len(jobIDs))
	for i, id := range jobIDs {
		args = append(args, id)
		values[i] = fmt.Sprintf("($1, $%d)", i+2)
	}
	return `INSERT INTO email_log (user_id, job_id) VALUES ` + strings.Join(values, ", ") +
		` ON CONFLICT (user_id, job_id) DO NOTHING`, args
}

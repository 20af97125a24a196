package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ksandoe/quizmaker/internal/apperr"
	"github.com/ksandoe/quizmaker/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// OpenPostgres connects with lib/pq, retrying the first ping with
// exponential backoff for up to maxWait.
func OpenPostgres(ctx context.Context, dsn string, maxWait time.Duration, log *logrus.Entry) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("Postgres not reachable yet")
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresStore talks to Postgres directly with database/sql.
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Entry
	now func() time.Time
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB, log *logrus.Entry) *PostgresStore {
	return &PostgresStore{db: db, log: log, now: time.Now}
}

var _ Store = (*PostgresStore)(nil)

const videoColumns = `video_id, url, title, transcript, creator_id, status, error_message,
	duration_seconds, word_count, max_segments, created_at, updated_at`

const segmentColumns = `segment_id, video_id, position, content, word_count, creator_id,
	status, error_message, created_at, updated_at`

const questionColumns = `question_id, segment_id, question_text, option_a, option_b, option_c,
	option_d, correct_answer, creator_id, status, error_message, created_at, updated_at`

const responseColumns = `response_id, question_id, user_id, selected_answer, is_correct,
	creator_id, status, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (models.Video, error) {
	var (
		v                            models.Video
		transcript, errMsg           sql.NullString
		duration, words, maxSegments sql.NullInt64
	)
	err := row.Scan(&v.VideoID, &v.URL, &v.Title, &transcript, &v.CreatorID, &v.Status, &errMsg,
		&duration, &words, &maxSegments, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return models.Video{}, err
	}
	v.Transcript = nullString(transcript)
	v.ErrorMessage = nullString(errMsg)
	v.DurationSeconds = nullInt(duration)
	v.WordCount = nullInt(words)
	v.MaxSegments = nullInt(maxSegments)
	return v, nil
}

func scanSegment(row rowScanner) (models.Segment, error) {
	var (
		seg    models.Segment
		errMsg sql.NullString
	)
	err := row.Scan(&seg.SegmentID, &seg.VideoID, &seg.Position, &seg.Content, &seg.WordCount,
		&seg.CreatorID, &seg.Status, &errMsg, &seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		return models.Segment{}, err
	}
	seg.ErrorMessage = nullString(errMsg)
	return seg, nil
}

func scanQuestion(row rowScanner) (models.Question, error) {
	var (
		q      models.Question
		errMsg sql.NullString
	)
	err := row.Scan(&q.QuestionID, &q.SegmentID, &q.QuestionText, &q.OptionA, &q.OptionB,
		&q.OptionC, &q.OptionD, &q.CorrectAnswer, &q.CreatorID, &q.Status, &errMsg,
		&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return models.Question{}, err
	}
	q.ErrorMessage = nullString(errMsg)
	return q, nil
}

func scanResponse(row rowScanner) (models.Response, error) {
	var (
		r      models.Response
		errMsg sql.NullString
	)
	err := row.Scan(&r.ResponseID, &r.QuestionID, &r.UserID, &r.SelectedAnswer, &r.IsCorrect,
		&r.CreatorID, &r.Status, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Response{}, err
	}
	r.ErrorMessage = nullString(errMsg)
	return r, nil
}

func (s *PostgresStore) CreateVideo(ctx context.Context, nv models.NewVideo) (models.Video, error) {
	status := nv.Status
	if status == "" {
		status = models.VideoStatusPending
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO videos (url, title, creator_id, status, max_segments)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+videoColumns,
		nv.URL, nv.Title, nv.CreatorID, string(status), intOrNull(nv.MaxSegments))
	v, err := scanVideo(row)
	if err != nil {
		return models.Video{}, apperr.E(apperr.Storage, "insert video", err)
	}
	s.log.WithField("video_id", v.VideoID).Info("Video record created")
	return v, nil
}

func (s *PostgresStore) GetVideo(ctx context.Context, videoID, creatorID string) (models.Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE video_id = $1 AND creator_id = $2`,
		videoID, creatorID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Video{}, apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	if err != nil {
		return models.Video{}, apperr.E(apperr.Storage, fmt.Sprintf("fetch video %s", videoID), err)
	}
	return v, nil
}

func (s *PostgresStore) UpdateVideo(ctx context.Context, videoID, creatorID string, patch models.VideoPatch) error {
	sets, args := setClause(patch.Columns(s.now()))
	args = append(args, videoID, creatorID)
	query := fmt.Sprintf(`UPDATE videos SET %s WHERE video_id = $%d AND creator_id = $%d`,
		sets, len(args)-1, len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("update video %s", videoID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	return nil
}

func (s *PostgresStore) ClaimVideo(ctx context.Context, videoID, creatorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE videos SET status = $1, updated_at = $2
		 WHERE video_id = $3 AND creator_id = $4 AND status = $5`,
		string(models.VideoStatusDownloading), s.now(), videoID, creatorID, string(models.VideoStatusPending))
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("claim video %s", videoID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("claim video %s", videoID), err)
	}
	if n == 1 {
		return nil
	}
	v, err := s.GetVideo(ctx, videoID, creatorID)
	if err != nil {
		return err
	}
	return apperr.New(apperr.Conflict, fmt.Sprintf("video %s is %s, not pending", videoID, v.Status))
}

func (s *PostgresStore) ListVideos(ctx context.Context, creatorID string) ([]models.Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE creator_id = $1 ORDER BY created_at DESC`,
		creatorID)
	if err != nil {
		return nil, apperr.E(apperr.Storage, "list videos", err)
	}
	defer rows.Close()

	out := []models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, apperr.E(apperr.Storage, "scan video", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.Storage, "list videos", err)
	}
	return out, nil
}

// DeleteVideo relies on the ON DELETE CASCADE chain of the schema.
func (s *PostgresStore) DeleteVideo(ctx context.Context, videoID, creatorID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM videos WHERE video_id = $1 AND creator_id = $2`, videoID, creatorID)
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("delete video %s", videoID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("video %s not found", videoID))
	}
	s.log.WithField("video_id", videoID).Info("Video deleted")
	return nil
}

// insertSegmentsQuery builds one multi-row INSERT for the batch.
func insertSegmentsQuery(segs []models.NewSegment) (string, []interface{}) {
	const perRow = 6
	values := make([]string, len(segs))
	args := make([]interface{}, 0, len(segs)*perRow)
	for i, ns := range segs {
		n := i * perRow
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, ns.VideoID, ns.Position, ns.Content, ns.WordCount, ns.CreatorID, string(ns.Status))
	}
	query := `INSERT INTO segments (video_id, position, content, word_count, creator_id, status)
		 VALUES ` + strings.Join(values, ", ") + `
		 RETURNING ` + segmentColumns
	return query, args
}

func (s *PostgresStore) InsertSegments(ctx context.Context, segs []models.NewSegment) ([]models.Segment, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	query, args := insertSegmentsQuery(segs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.E(apperr.Storage, "insert segments", err)
	}
	defer rows.Close()

	// RETURNING order is not guaranteed; (video_id, position) is unique.
	index := make(map[string]int, len(segs))
	for i, ns := range segs {
		index[fmt.Sprintf("%s/%d", ns.VideoID, ns.Position)] = i
	}
	out := make([]models.Segment, len(segs))
	seen := 0
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, apperr.E(apperr.Storage, "scan inserted segment", err)
		}
		i, ok := index[fmt.Sprintf("%s/%d", seg.VideoID, seg.Position)]
		if !ok {
			return nil, apperr.New(apperr.Storage, fmt.Sprintf("unexpected segment %s returned", seg.SegmentID))
		}
		out[i] = seg
		seen++
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.Storage, "insert segments", err)
	}
	if seen != len(segs) {
		return nil, apperr.New(apperr.Storage, fmt.Sprintf("inserted %d segments, got %d back", len(segs), seen))
	}
	return out, nil
}

func (s *PostgresStore) ListSegments(ctx context.Context, videoID, creatorID string) ([]models.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+segmentColumns+` FROM segments
		 WHERE video_id = $1 AND creator_id = $2
		 ORDER BY position`,
		videoID, creatorID)
	if err != nil {
		return nil, apperr.E(apperr.Storage, fmt.Sprintf("list segments of video %s", videoID), err)
	}
	defer rows.Close()

	var out []models.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, apperr.E(apperr.Storage, "scan segment", err)
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.Storage, "list segments", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateSegmentStatus(ctx context.Context, segmentID, creatorID string, status models.SegmentStatus, errMsg *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE segments
		 SET status = $1, error_message = COALESCE($2, error_message), updated_at = $3
		 WHERE segment_id = $4 AND creator_id = $5`,
		string(status), stringOrNull(errMsg), s.now(), segmentID, creatorID)
	if err != nil {
		return apperr.E(apperr.Storage, fmt.Sprintf("update segment %s", segmentID), err)
	}
	return nil
}

func (s *PostgresStore) QuestionExists(ctx context.Context, segmentID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM questions WHERE segment_id = $1)`, segmentID).Scan(&exists)
	if err != nil {
		return false, apperr.E(apperr.Storage, fmt.Sprintf("check question for segment %s", segmentID), err)
	}
	return exists, nil
}

func (s *PostgresStore) InsertQuestion(ctx context.Context, q models.NewQuestion) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO questions (segment_id, question_text, option_a, option_b, option_c, option_d,
		                        correct_answer, creator_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (segment_id) DO NOTHING
		 RETURNING question_id`,
		q.SegmentID, q.QuestionText, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		string(q.CorrectAnswer), q.CreatorID, q.Status).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.E(apperr.Storage, fmt.Sprintf("insert question for segment %s", q.SegmentID), err)
	}
	return true, nil
}

func (s *PostgresStore) ListQuestions(ctx context.Context, segmentIDs []string, creatorID string) ([]models.Question, error) {
	if len(segmentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE segment_id::text = ANY($1) AND creator_id = $2`,
		pq.Array(segmentIDs), creatorID)
	if err != nil {
		return nil, apperr.E(apperr.Storage, "list questions", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, apperr.E(apperr.Storage, "scan question", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.Storage, "list questions", err)
	}
	return out, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, questionID, creatorID string) (models.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE question_id = $1 AND creator_id = $2`,
		questionID, creatorID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Question{}, apperr.New(apperr.NotFound, fmt.Sprintf("question %s not found", questionID))
	}
	if err != nil {
		return models.Question{}, apperr.E(apperr.Storage, fmt.Sprintf("fetch question %s", questionID), err)
	}
	return q, nil
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, questionID, creatorID string, patch models.QuestionPatch) (models.Question, error) {
	sets, args := setClause(patch.Columns(s.now()))
	args = append(args, questionID, creatorID)
	query := fmt.Sprintf(`UPDATE questions SET %s WHERE question_id = $%d AND creator_id = $%d RETURNING `+questionColumns,
		sets, len(args)-1, len(args))

	q, err := scanQuestion(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Question{}, apperr.New(apperr.NotFound, fmt.Sprintf("question %s not found", questionID))
	}
	if err != nil {
		return models.Question{}, apperr.E(apperr.Storage, fmt.Sprintf("update question %s", questionID), err)
	}
	return q, nil
}

func (s *PostgresStore) CreateResponse(ctx context.Context, nr models.NewResponse) (models.Response, error) {
	r, err := scanResponse(s.db.QueryRowContext(ctx,
		`INSERT INTO responses (question_id, user_id, selected_answer, is_correct, creator_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+responseColumns,
		nr.QuestionID, nr.UserID, string(nr.SelectedAnswer), nr.IsCorrect, nr.CreatorID, nr.Status))
	if err != nil {
		return models.Response{}, apperr.E(apperr.Storage, fmt.Sprintf("insert response for question %s", nr.QuestionID), err)
	}
	return r, nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, questionID, creatorID string) ([]models.Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+responseColumns+` FROM responses
		 WHERE question_id = $1 AND creator_id = $2
		 ORDER BY created_at`,
		questionID, creatorID)
	if err != nil {
		return nil, apperr.E(apperr.Storage, fmt.Sprintf("list responses of question %s", questionID), err)
	}
	defer rows.Close()

	out := []models.Response{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, apperr.E(apperr.Storage, "scan response", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.Storage, "list responses", err)
	}
	return out, nil
}

// setClause renders cols as "col = $1, ..." in a stable order.
func setClause(cols map[string]interface{}) (string, []interface{}) {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)+2)
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(name), i+1))
		args = append(args, cols[name])
	}
	return strings.Join(sets, ", "), args
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func intOrNull(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

func stringOrNull(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

package db

import (
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"

	"resonate/internal/errors"
	"resonate/internal/post"
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// InsertPost stores a newly captured post.
func InsertPost(db *sql.DB, p *post.Post) error {
	urlsJSON, err := toJSON(p.URLs)
	if err != nil {
		return errors.NewInternal(err)
	}
	mediaJSON, err := toJSON(p.MediaURLs)
	if err != nil {
		return errors.NewInternal(err)
	}
	contextJSON, err := toJSON(p.Context)
	if err != nil {
		return errors.NewInternal(err)
	}

	query := `
		INSERT INTO posts (
			id, source_url, author_handle, author_name, body,
			urls_json, media_json, context_json, mode, processed,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err = db.Exec(query,
		p.ID, p.SourceURL, toNullString(p.AuthorHandle), toNullString(p.AuthorName),
		toNullString(p.Body), urlsJSON, mediaJSON, contextJSON, string(p.Mode),
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetPost retrieves a post by ID.
func GetPost(db *sql.DB, id string) (*post.Post, error) {
	query := `
		SELECT id, source_url, author_handle, author_name, body,
			urls_json, media_json, context_json, mode, processed,
			fetched_json, created_at, updated_at
		FROM posts
		WHERE id = ?
	`
	row := db.QueryRow(query, id)

	var (
		p                    post.Post
		handle, name, body   sql.NullString
		urlsJSON, mediaJSON  sql.NullString
		contextJSON, fetched sql.NullString
		mode                 string
		processed            int
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.SourceURL, &handle, &name, &body,
		&urlsJSON, &mediaJSON, &contextJSON, &mode, &processed,
		&fetched, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("post", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	p.AuthorHandle = handle.String
	p.AuthorName = name.String
	p.Body = body.String
	p.Mode = post.Mode(mode)
	p.Processed = processed != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	if err := fromJSON(urlsJSON, &p.URLs); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := fromJSON(mediaJSON, &p.MediaURLs); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := fromJSON(contextJSON, &p.Context); err != nil {
		return nil, errors.NewInternal(err)
	}
	if fetched.Valid {
		var fc post.FetchedContent
		if err := json.Unmarshal([]byte(fetched.String), &fc); err != nil {
			return nil, errors.NewInternal(err)
		}
		p.Fetched = &fc
	}
	return &p, nil
}

// MarkProcessed flags a post as processed and records its fetched-content snapshot.
func MarkProcessed(db *sql.DB, id string, fetched *post.FetchedContent) error {
	fetchedJSON, err := toJSON(fetched)
	if err != nil {
		return errors.NewInternal(err)
	}
	res, err := db.Exec(
		`UPDATE posts SET processed = 1, fetched_json = ?, updated_at = ? WHERE id = ?`,
		fetchedJSON, time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("post", id)
	}
	return nil
}

// InsertEvaluation stores the result of an evaluation pass.
func InsertEvaluation(db *sql.DB, e *post.Evaluation) error {
	query := `
		INSERT INTO evaluations (
			id, post_id, quality_score, intention, quadrant,
			resonance_potential, reasoning, raw_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		e.ID, e.PostID, e.QualityScore, e.Intention, e.Quadrant,
		e.ResonancePotential, toNullString(e.Reasoning), toNullString(e.RawJSON),
		e.CreatedAt.Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetEvaluationByPost retrieves the most recent evaluation for a post.
func GetEvaluationByPost(db *sql.DB, postID string) (*post.Evaluation, error) {
	query := `
		SELECT id, post_id, quality_score, intention, quadrant,
			resonance_potential, reasoning, raw_json, created_at
		FROM evaluations
		WHERE post_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	row := db.QueryRow(query, postID)

	var (
		e                  post.Evaluation
		reasoning, rawJSON sql.NullString
		createdAt          int64
	)
	err := row.Scan(&e.ID, &e.PostID, &e.QualityScore, &e.Intention, &e.Quadrant,
		&e.ResonancePotential, &reasoning, &rawJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("evaluation", postID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	e.Reasoning = reasoning.String
	e.RawJSON = rawJSON.String
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &e, nil
}

// InsertDraft stores a generated draft reply.
func InsertDraft(db *sql.DB, d *post.Draft) error {
	query := `
		INSERT INTO drafts (id, post_id, text, tone, mode, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query,
		d.ID, d.PostID, d.Text, toNullString(d.Tone), string(d.Mode), d.Status,
		d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetDraftByPost retrieves the most recent draft for a post.
func GetDraftByPost(db *sql.DB, postID string) (*post.Draft, error) {
	query := `
		SELECT id, post_id, text, tone, mode, status, created_at, updated_at
		FROM drafts
		WHERE post_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return scanDraft(db.QueryRow(query, postID), postID)
}

// GetDraft retrieves a draft by its ID.
func GetDraft(db *sql.DB, id string) (*post.Draft, error) {
	query := `
		SELECT id, post_id, text, tone, mode, status, created_at, updated_at
		FROM drafts
		WHERE id = ?
	`
	return scanDraft(db.QueryRow(query, id), id)
}

// ListDraftsOptions filters the draft listing.
type ListDraftsOptions struct {
	Status string
	PostID string
	Limit  int
	Offset int
}

// ListDrafts returns drafts matching the options, most recent first.
func ListDrafts(db *sql.DB, opts ListDraftsOptions) ([]*post.Draft, error) {
	q := builder.
		Select("id", "post_id", "text", "tone", "mode", "status", "created_at", "updated_at").
		From("drafts").
		OrderBy("created_at DESC", "id DESC")

	if opts.Status != "" {
		q = q.Where(sq.Eq{"status": opts.Status})
	}
	if opts.PostID != "" {
		q = q.Where(sq.Eq{"post_id": opts.PostID})
	}
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q = q.Limit(uint64(limit))
	if opts.Offset > 0 {
		q = q.Offset(uint64(opts.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var drafts []*post.Draft
	for rows.Next() {
		var (
			d                    post.Draft
			tone                 sql.NullString
			mode                 string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&d.ID, &d.PostID, &d.Text, &tone, &mode, &d.Status, &createdAt, &updatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		d.Tone = tone.String
		d.Mode = post.Mode(mode)
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		drafts = append(drafts, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return drafts, nil
}

// UpdateDraftStatus transitions a draft to a new review status.
func UpdateDraftStatus(db *sql.DB, id, status string) error {
	if !post.ValidStatus(status) {
		return errors.NewInvalidRequest("invalid draft status: " + status)
	}
	res, err := db.Exec(
		`UPDATE drafts SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Unix(), id,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("draft", id)
	}
	return nil
}

// GetTemplate retrieves a prompt template body by name.
func GetTemplate(db *sql.DB, name string) (string, error) {
	var body string
	err := db.QueryRow(`SELECT body FROM prompt_templates WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return "", errors.NewNotFound("template", name)
	}
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return body, nil
}

// UpsertTemplate stores or replaces a prompt template.
func UpsertTemplate(db *sql.DB, name, body string) error {
	query := `
		INSERT INTO prompt_templates (name, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, name, body, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func scanDraft(row *sql.Row, identifier string) (*post.Draft, error) {
	var (
		d                    post.Draft
		tone                 sql.NullString
		mode                 string
		createdAt, updatedAt int64
	)
	err := row.Scan(&d.ID, &d.PostID, &d.Text, &tone, &mode, &d.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("draft", identifier)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	d.Tone = tone.String
	d.Mode = post.Mode(mode)
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &d, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch vv := v.(type) {
	case []string:
		if len(vv) == 0 {
			return sql.NullString{}, nil
		}
	case []post.ContextItem:
		if len(vv) == 0 {
			return sql.NullString{}, nil
		}
	case *post.FetchedContent:
		if vv == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func fromJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

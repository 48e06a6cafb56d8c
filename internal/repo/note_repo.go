package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/dbutil"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
)

const (
	NoteStateNormal  = 1
	NoteStateDeleted = 2
)

var noteColumns = []string{
	"id", "user_id", "title", "snippet", "comment", "url",
	"title_vector", "snippet_vector", "comment_vector",
	"related", "related_mtime", "state", "ctime", "mtime",
}

var vectorColumns = [model.NoteFieldCount]string{"title_vector", "snippet_vector", "comment_vector"}

type NoteRepo struct {
	db *sqlx.DB
}

func NewNoteRepo(db *sqlx.DB) *NoteRepo {
	return &NoteRepo{db: db}
}

func (r *NoteRepo) Create(ctx context.Context, note *model.Note) error {
	related, err := encodeRelated(note.Related)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":             note.ID,
		"user_id":        note.UserID,
		"title":          note.Title,
		"snippet":        note.Snippet,
		"comment":        note.Comment,
		"url":            note.URL,
		"title_vector":   encodeVector(note.TitleVector),
		"snippet_vector": encodeVector(note.SnippetVector),
		"comment_vector": encodeVector(note.CommentVector),
		"related":        related,
		"related_mtime":  note.RelatedMtime,
		"state":          note.State,
		"ctime":          note.Ctime,
		"mtime":          note.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("notes", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *NoteRepo) GetByID(ctx context.Context, userID, noteID string) (*model.Note, error) {
	where := map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
		"state":   NoteStateNormal,
	}
	notes, err := r.selectNotes(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, appErr.ErrNotFound
	}
	return notes[0], nil
}

// ListByUser returns the live notes of an owner in creation order.
func (r *NoteRepo) ListByUser(ctx context.Context, userID string) ([]*model.Note, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"state":    NoteStateNormal,
		"_orderby": "ctime asc, id asc",
	}
	return r.selectNotes(ctx, where)
}

// Update writes the text fields of note and clears the stored vectors of the
// given fields so they are recomputed.
func (r *NoteRepo) Update(ctx context.Context, note *model.Note, staleFields []model.NoteField) error {
	where := map[string]interface{}{
		"id":      note.ID,
		"user_id": note.UserID,
		"state":   NoteStateNormal,
	}
	update := map[string]interface{}{
		"title":   note.Title,
		"snippet": note.Snippet,
		"comment": note.Comment,
		"url":     note.URL,
		"mtime":   note.Mtime,
	}
	for _, f := range staleFields {
		update[vectorColumns[f]] = nil
	}
	return r.execUpdate(ctx, where, update)
}

func (r *NoteRepo) Delete(ctx context.Context, userID, noteID string, mtime int64) error {
	where := map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
		"state":   NoteStateNormal,
	}
	update := map[string]interface{}{
		"state": NoteStateDeleted,
		"mtime": mtime,
	}
	return r.execUpdate(ctx, where, update)
}

// UpdateEmbeddings merge-writes only the given vector columns. The write is
// skipped when the note changed after mtime was read, so a late writer never
// stores a vector computed from replaced text.
func (r *NoteRepo) UpdateEmbeddings(ctx context.Context, noteID string, mtime int64, vectors map[model.NoteField][]float32) (bool, error) {
	if len(vectors) == 0 {
		return false, nil
	}
	where := map[string]interface{}{
		"id":    noteID,
		"mtime": mtime,
	}
	update := make(map[string]interface{}, len(vectors))
	for f, v := range vectors {
		if f < 0 || int(f) >= model.NoteFieldCount {
			return false, fmt.Errorf("invalid note field %d", f)
		}
		update[vectorColumns[f]] = encodeVector(v)
	}
	err := r.execUpdate(ctx, where, update)
	if appErr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *NoteRepo) UpdateRelated(ctx context.Context, noteID string, related []model.NoteSummary, relatedMtime int64) error {
	raw, err := encodeRelated(related)
	if err != nil {
		return err
	}
	where := map[string]interface{}{
		"id": noteID,
	}
	update := map[string]interface{}{
		"related":       raw,
		"related_mtime": relatedMtime,
	}
	return r.execUpdate(ctx, where, update)
}

// ListMissingEmbeddings returns live notes that carry text in a field whose
// vector has not been computed yet.
func (r *NoteRepo) ListMissingEmbeddings(ctx context.Context, userID string, limit int) ([]*model.Note, error) {
	query := `SELECT ` + strings.Join(noteColumns, ", ") + ` FROM notes WHERE state = ? AND (` +
		`(title <> '' AND title_vector IS NULL) OR ` +
		`(snippet <> '' AND snippet_vector IS NULL) OR ` +
		`(comment <> '' AND comment_vector IS NULL))`
	args := []interface{}{NoteStateNormal}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY mtime ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	sqlStr, args := dbutil.Finalize(r.db, query, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNotes(rows)
}

// ListAll pages through live notes, optionally restricted to one owner.
func (r *NoteRepo) ListAll(ctx context.Context, userID string, limit, offset uint) ([]*model.Note, error) {
	where := map[string]interface{}{
		"state":    NoteStateNormal,
		"_orderby": "ctime asc, id asc",
		"_limit":   []uint{offset, limit},
	}
	if userID != "" {
		where["user_id"] = userID
	}
	return r.selectNotes(ctx, where)
}

func (r *NoteRepo) selectNotes(ctx context.Context, where map[string]interface{}) ([]*model.Note, error) {
	sqlStr, args, err := builder.BuildSelect("notes", where, noteColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNotes(rows)
}

func (r *NoteRepo) execUpdate(ctx context.Context, where, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("notes", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanNotes(rows *sql.Rows) ([]*model.Note, error) {
	notes := make([]*model.Note, 0)
	for rows.Next() {
		var (
			note    model.Note
			vectors [model.NoteFieldCount]sql.Null[pgvector.Vector]
			related string
		)
		if err := rows.Scan(&note.ID, &note.UserID, &note.Title, &note.Snippet, &note.Comment, &note.URL,
			&vectors[model.NoteFieldTitle], &vectors[model.NoteFieldSnippet], &vectors[model.NoteFieldComment],
			&related, &note.RelatedMtime, &note.State, &note.Ctime, &note.Mtime); err != nil {
			return nil, err
		}
		for i, v := range vectors {
			if v.Valid {
				note.SetVector(model.NoteField(i), v.V.Slice())
			}
		}
		if related != "" {
			if err := json.Unmarshal([]byte(related), &note.Related); err != nil {
				return nil, fmt.Errorf("decode related of note %s: %w", note.ID, err)
			}
		}
		notes = append(notes, &note)
	}
	return notes, rows.Err()
}

// encodeVector stores empty vectors as NULL; pgvector cannot parse "[]".
func encodeVector(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func encodeRelated(related []model.NoteSummary) (string, error) {
	if len(related) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(related)
	if err != nil {
		return "", fmt.Errorf("encode related: %w", err)
	}
	return string(raw), nil
}

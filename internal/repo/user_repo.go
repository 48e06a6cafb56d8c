package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/relnote/internal/model"
	"github.com/xxxsen/relnote/internal/pkg/dbutil"
	appErr "github.com/xxxsen/relnote/internal/pkg/errors"
)

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Ensure inserts the user unless a row with the same id exists. It reports
// whether a new row was created.
func (r *UserRepo) Ensure(ctx context.Context, user *model.User) (bool, error) {
	const query = `INSERT INTO users (id, name, activity_mtime, ctime, mtime) VALUES (?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`
	sqlStr, args := dbutil.Finalize(r.db, query, []interface{}{user.ID, user.Name, user.ActivityMtime, user.Ctime, user.Mtime})
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	where := map[string]interface{}{"id": userID}
	sqlStr, args, err := builder.BuildSelect("users", where, []string{"id", "name", "activity_mtime", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	var user model.User
	if err := rows.Scan(&user.ID, &user.Name, &user.ActivityMtime, &user.Ctime, &user.Mtime); err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchActivity moves the activity clock of a user forward to ts. An older
// ts leaves the clock untouched.
func (r *UserRepo) TouchActivity(ctx context.Context, userID string, ts int64) error {
	where := map[string]interface{}{
		"id":               userID,
		"activity_mtime <": ts,
	}
	update := map[string]interface{}{
		"activity_mtime": ts,
		"mtime":          ts,
	}
	sqlStr, args, err := builder.BuildUpdate("users", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(r.db, sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

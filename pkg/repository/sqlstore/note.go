package sqlstore

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/model"
	"github.com/betwatch/casekeeper/pkg/domain/types"
)

const noteColumns = `id, case_id, author, comment, attachment_ref, updated_by, edited_after_grace, created_at, updated_at`

type noteRepository struct {
	c conn
}

func scanNote(row rowScanner) (*model.Note, error) {
	var (
		n                    model.Note
		author, updatedBy    string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&n.ID, &n.CaseID, &author, &n.Comment, &n.AttachmentRef, &updatedBy,
		&n.EditedAfterGrace, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	n.Author = types.ActorID(author)
	n.UpdatedBy = types.ActorID(updatedBy)
	n.CreatedAt = fromNanos(createdAt)
	n.UpdatedAt = fromNanos(updatedAt)
	return &n, nil
}

func getNote(ctx context.Context, c conn, id int64) (*model.Note, error) {
	n, err := scanNote(c.queryRow(ctx, `SELECT `+noteColumns+` FROM case_notes WHERE id = ?`, id))
	if err != nil {
		return nil, mapError(err, "note not found", goerr.V(model.NoteIDKey, id))
	}
	return n, nil
}

func (r *noteRepository) Get(ctx context.Context, id int64) (*model.Note, error) {
	return getNote(ctx, r.c, id)
}

func (r *noteRepository) ListByCase(ctx context.Context, caseID int64) ([]*model.Note, error) {
	rows, err := r.c.query(ctx,
		`SELECT `+noteColumns+` FROM case_notes WHERE case_id = ? ORDER BY created_at, id`, caseID)
	if err != nil {
		return nil, model.WrapPersistence(err, "failed to list notes", goerr.V(model.CaseIDKey, caseID))
	}
	defer rows.Close()

	notes := []*model.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, model.WrapPersistence(err, "failed to scan note")
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapPersistence(err, "failed to iterate notes")
	}
	return notes, nil
}

package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/betwatch/casekeeper/pkg/domain/model"
)

func TestNotePolicyCheckEdit(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	note := &model.Note{ID: 1, CreatedAt: created}

	t.Run("within grace period", func(t *testing.T) {
		p := model.NotePolicy{GracePeriod: 10 * time.Minute, OnExpired: model.NoteEditReject}
		flagged, err := p.CheckEdit(note, created.Add(10*time.Minute))
		gt.NoError(t, err)
		gt.Bool(t, flagged).False()
	})

	t.Run("reject after grace period", func(t *testing.T) {
		p := model.NotePolicy{GracePeriod: 10 * time.Minute, OnExpired: model.NoteEditReject}
		_, err := p.CheckEdit(note, created.Add(11*time.Minute))
		gt.Error(t, err).Is(model.ErrInvalidState)
	})

	t.Run("flag after grace period", func(t *testing.T) {
		p := model.NotePolicy{GracePeriod: 10 * time.Minute, OnExpired: model.NoteEditFlag}
		flagged, err := p.CheckEdit(note, created.Add(time.Hour))
		gt.NoError(t, err)
		gt.Bool(t, flagged).True()
	})

	t.Run("zero grace period disables the limit", func(t *testing.T) {
		p := model.NotePolicy{OnExpired: model.NoteEditReject}
		flagged, err := p.CheckEdit(note, created.Add(24*time.Hour))
		gt.NoError(t, err)
		gt.Bool(t, flagged).False()
	})
}

func TestNoteValidate(t *testing.T) {
	t.Parallel()

	gt.NoError(t, (&model.Note{Author: "a-1", Comment: "called customer"}).Validate())
	gt.Error(t, (&model.Note{Author: "a-1", Comment: "  "}).Validate()).Is(model.ErrValidation)
	gt.Error(t, (&model.Note{Comment: "called customer"}).Validate()).Is(model.ErrValidation)
	gt.Error(t, model.NoteEditPolicy("ignore").Validate()).Is(model.ErrValidation)
	gt.NoError(t, model.NoteEditFlag.Validate())
}

package firestore

import (
	"context"
	"slices"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

type writeKind int

const (
	writeSet writeKind = iota
	writeCreate
	writeDelete
)

type pendingWrite struct {
	ref  *firestore.DocumentRef
	kind writeKind
	data any
}

// firestoreTx buffers writes until fn returns. Reads of a document written earlier in the same
// transaction are served from the buffer.
type firestoreTx struct {
	f        *Firestore
	t        *firestore.Transaction
	writes   []*pendingWrite
	byPath   map[string]*pendingWrite
	counters map[string]int64
}

var _ interfaces.Tx = &firestoreTx{}

func newFirestoreTx(f *Firestore, t *firestore.Transaction) *firestoreTx {
	return &firestoreTx{
		f:        f,
		t:        t,
		byPath:   make(map[string]*pendingWrite),
		counters: make(map[string]int64),
	}
}

func (tx *firestoreTx) put(ref *firestore.DocumentRef, kind writeKind, data any) {
	if w, ok := tx.byPath[ref.Path]; ok {
		// A document created in this transaction stays a create when rewritten
		if !(w.kind == writeCreate && kind == writeSet) {
			w.kind = kind
		}
		w.data = data
		return
	}
	w := &pendingWrite{ref: ref, kind: kind, data: data}
	tx.writes = append(tx.writes, w)
	tx.byPath[ref.Path] = w
}

func (tx *firestoreTx) pending(ref *firestore.DocumentRef) (*pendingWrite, bool) {
	w, ok := tx.byPath[ref.Path]
	return w, ok
}

func (tx *firestoreTx) flush() error {
	for name, value := range tx.counters {
		ref := tx.f.collection(collCounters).Doc(name)
		if err := tx.t.Set(ref, map[string]any{"value": value}); err != nil {
			return goerr.Wrap(err, "failed to write counter", goerr.V("counter", name))
		}
	}

	for _, w := range tx.writes {
		var err error
		switch w.kind {
		case writeCreate:
			err = tx.t.Create(w.ref, w.data)
		case writeSet:
			err = tx.t.Set(w.ref, w.data)
		case writeDelete:
			err = tx.t.Delete(w.ref)
		}
		if err != nil {
			return goerr.Wrap(err, "failed to buffer write", goerr.V("path", w.ref.Path))
		}
	}
	return nil
}

// nextID reads the counter once per transaction and keeps incrementing locally
func (tx *firestoreTx) nextID(name string) (int64, error) {
	if v, ok := tx.counters[name]; ok {
		tx.counters[name] = v + 1
		return v + 1, nil
	}

	ref := tx.f.collection(collCounters).Doc(name)
	var current int64
	doc, err := tx.t.Get(ref)
	switch {
	case isNotFound(err):
		current = 0
	case err != nil:
		return 0, mapError(err, "failed to get counter", goerr.V("counter", name))
	default:
		value, err := doc.DataAt("value")
		if err != nil {
			return 0, model.WrapPersistence(err, "failed to get counter value", goerr.V("counter", name))
		}
		v, ok := value.(int64)
		if !ok {
			return 0, goerr.Wrap(model.ErrPersistence, "counter value is not of type int64", goerr.V("value", value))
		}
		current = v
	}

	tx.counters[name] = current + 1
	return current + 1, nil
}

func (tx *firestoreTx) GetCase(ctx context.Context, id int64) (*model.Case, error) {
	ref := tx.f.collection(collCases).Doc(docID(id))
	if w, ok := tx.pending(ref); ok && w.kind != writeDelete {
		return w.data.(*model.Case).Clone(), nil
	}

	snap, err := tx.t.Get(ref)
	if err != nil {
		return nil, mapError(err, "case not found", goerr.V(model.CaseIDKey, id))
	}
	var c model.Case
	if err := snap.DataTo(&c); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode case", goerr.V(model.CaseIDKey, id))
	}
	return &c, nil
}

func (tx *firestoreTx) CreateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	id, err := tx.nextID("case_counter")
	if err != nil {
		return nil, err
	}
	created := c.Clone()
	created.ID = id
	created.Version = 1
	tx.put(tx.f.collection(collCases).Doc(docID(id)), writeCreate, created.Clone())
	return created, nil
}

func (tx *firestoreTx) UpdateCase(ctx context.Context, c *model.Case) (*model.Case, error) {
	stored, err := tx.GetCase(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if stored.Version != c.Version {
		return nil, goerr.Wrap(model.ErrConflict, "case was modified concurrently",
			goerr.V(model.CaseIDKey, c.ID), goerr.V("version", c.Version), goerr.V("stored_version", stored.Version))
	}

	updated := c.Clone()
	updated.Version = stored.Version + 1
	tx.put(tx.f.collection(collCases).Doc(docID(c.ID)), writeSet, updated.Clone())
	return updated, nil
}

func (tx *firestoreTx) GetIncident(ctx context.Context, id int64) (*model.Incident, error) {
	ref := tx.f.collection(collIncidents).Doc(docID(id))
	if w, ok := tx.pending(ref); ok && w.kind != writeDelete {
		return w.data.(*incidentDoc).toModel()
	}

	snap, err := tx.t.Get(ref)
	if err != nil {
		return nil, mapError(err, "incident not found", goerr.V(model.IncidentIDKey, id))
	}
	var d incidentDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode incident", goerr.V(model.IncidentIDKey, id))
	}
	return d.toModel()
}

func (tx *firestoreTx) CreateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	id, err := tx.nextID("incident_counter")
	if err != nil {
		return nil, err
	}
	created := inc.Clone()
	created.ID = id

	d, err := toIncidentDoc(created)
	if err != nil {
		return nil, err
	}
	tx.put(tx.f.collection(collIncidents).Doc(docID(id)), writeCreate, d)
	return created, nil
}

func (tx *firestoreTx) UpdateIncident(ctx context.Context, inc *model.Incident) (*model.Incident, error) {
	if _, err := tx.GetIncident(ctx, inc.ID); err != nil {
		return nil, err
	}
	d, err := toIncidentDoc(inc)
	if err != nil {
		return nil, err
	}
	tx.put(tx.f.collection(collIncidents).Doc(docID(inc.ID)), writeSet, d)
	return inc.Clone(), nil
}

func (tx *firestoreTx) getAssignment(id string) (*model.Assignment, error) {
	ref := tx.f.collection(collAssignments).Doc(id)
	if w, ok := tx.pending(ref); ok && w.kind != writeDelete {
		return w.data.(*model.Assignment).Clone(), nil
	}

	snap, err := tx.t.Get(ref)
	if err != nil {
		return nil, mapError(err, "assignment not found", goerr.V(model.AssignmentIDKey, id))
	}
	var a model.Assignment
	if err := snap.DataTo(&a); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode assignment", goerr.V(model.AssignmentIDKey, id))
	}
	return &a, nil
}

func (tx *firestoreTx) getActivePointer(incidentID int64) (*activePointer, error) {
	ref := tx.f.collection(collActiveAssignments).Doc(docID(incidentID))
	if w, ok := tx.pending(ref); ok {
		if w.kind == writeDelete {
			return nil, nil
		}
		p := *w.data.(*activePointer)
		return &p, nil
	}

	snap, err := tx.t.Get(ref)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "failed to get active assignment", goerr.V(model.IncidentIDKey, incidentID))
	}
	var p activePointer
	if err := snap.DataTo(&p); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode active assignment", goerr.V(model.IncidentIDKey, incidentID))
	}
	return &p, nil
}

func (tx *firestoreTx) GetActiveAssignment(ctx context.Context, incidentID int64) (*model.Assignment, error) {
	p, err := tx.getActivePointer(incidentID)
	if err != nil || p == nil {
		return nil, err
	}
	return tx.getAssignment(p.AssignmentID)
}

func (tx *firestoreTx) ListActiveAssignmentsByCase(ctx context.Context, caseID int64) ([]*model.Assignment, error) {
	q := tx.f.collection(collActiveAssignments).Where("CaseID", "==", caseID)
	iter := tx.t.Documents(q)
	defer iter.Stop()

	var out []*model.Assignment
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapError(err, "failed to list active assignments", goerr.V(model.CaseIDKey, caseID))
		}
		var p activePointer
		if err := snap.DataTo(&p); err != nil {
			return nil, model.WrapPersistence(err, "failed to decode active assignment", goerr.V("doc_id", snap.Ref.ID))
		}
		a, err := tx.getAssignment(p.AssignmentID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	slices.SortFunc(out, compareAssignments)
	return out, nil
}

func (tx *firestoreTx) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	inc, err := tx.GetIncident(ctx, a.IncidentID)
	if err != nil {
		return err
	}

	if a.Active {
		current, err := tx.getActivePointer(a.IncidentID)
		if err != nil {
			return err
		}
		if current != nil {
			return goerr.Wrap(model.ErrConflict, "incident already has an active assignment",
				goerr.V(model.IncidentIDKey, a.IncidentID), goerr.V(model.AssignmentIDKey, current.AssignmentID))
		}

		tx.put(tx.f.collection(collActiveAssignments).Doc(docID(a.IncidentID)), writeSet,
			&activePointer{AssignmentID: a.ID, CaseID: a.CaseID})

		caseID := a.CaseID
		inc.CaseID = &caseID
		d, err := toIncidentDoc(inc)
		if err != nil {
			return err
		}
		tx.put(tx.f.collection(collIncidents).Doc(docID(inc.ID)), writeSet, d)
	}

	tx.put(tx.f.collection(collAssignments).Doc(a.ID), writeCreate, a.Clone())
	return nil
}

func (tx *firestoreTx) UpdateAssignment(ctx context.Context, a *model.Assignment) error {
	if a.Active {
		return goerr.Wrap(model.ErrInvalidState, "assignments can only be deactivated", goerr.V(model.AssignmentIDKey, a.ID))
	}
	if _, err := tx.getAssignment(a.ID); err != nil {
		return err
	}

	current, err := tx.getActivePointer(a.IncidentID)
	if err != nil {
		return err
	}
	var inc *model.Incident
	if current != nil && current.AssignmentID == a.ID {
		if inc, err = tx.GetIncident(ctx, a.IncidentID); err != nil {
			return err
		}
	}

	tx.put(tx.f.collection(collAssignments).Doc(a.ID), writeSet, a.Clone())
	if inc != nil {
		tx.put(tx.f.collection(collActiveAssignments).Doc(docID(a.IncidentID)), writeDelete, nil)
		inc.CaseID = nil
		d, err := toIncidentDoc(inc)
		if err != nil {
			return err
		}
		tx.put(tx.f.collection(collIncidents).Doc(docID(inc.ID)), writeSet, d)
	}
	return nil
}

func (tx *firestoreTx) GetNote(ctx context.Context, id int64) (*model.Note, error) {
	ref := tx.f.collection(collNotes).Doc(docID(id))
	if w, ok := tx.pending(ref); ok {
		if w.kind == writeDelete {
			return nil, goerr.Wrap(model.ErrNotFound, "note not found", goerr.V(model.NoteIDKey, id))
		}
		return w.data.(*model.Note).Clone(), nil
	}

	snap, err := tx.t.Get(ref)
	if err != nil {
		return nil, mapError(err, "note not found", goerr.V(model.NoteIDKey, id))
	}
	var n model.Note
	if err := snap.DataTo(&n); err != nil {
		return nil, model.WrapPersistence(err, "failed to decode note", goerr.V(model.NoteIDKey, id))
	}
	return &n, nil
}

func (tx *firestoreTx) CreateNote(ctx context.Context, n *model.Note) (*model.Note, error) {
	id, err := tx.nextID("note_counter")
	if err != nil {
		return nil, err
	}
	created := n.Clone()
	created.ID = id
	tx.put(tx.f.collection(collNotes).Doc(docID(id)), writeCreate, created.Clone())
	return created, nil
}

func (tx *firestoreTx) UpdateNote(ctx context.Context, n *model.Note) (*model.Note, error) {
	if _, err := tx.GetNote(ctx, n.ID); err != nil {
		return nil, err
	}
	tx.put(tx.f.collection(collNotes).Doc(docID(n.ID)), writeSet, n.Clone())
	return n.Clone(), nil
}

func (tx *firestoreTx) DeleteNote(ctx context.Context, id int64) error {
	if _, err := tx.GetNote(ctx, id); err != nil {
		return err
	}
	tx.put(tx.f.collection(collNotes).Doc(docID(id)), writeDelete, nil)
	return nil
}

func (tx *firestoreTx) CreateBotExecution(ctx context.Context, e *model.BotExecution) (*model.BotExecution, error) {
	id, err := tx.nextID("bot_execution_counter")
	if err != nil {
		return nil, err
	}
	created := e.Clone()
	created.ID = id
	tx.put(tx.f.collection(collBotExecutions).Doc(docID(id)), writeCreate, created.Clone())
	return created, nil
}

func (tx *firestoreTx) AppendAudit(ctx context.Context, e *model.AuditLogEntry) error {
	tx.put(tx.f.collection(collAuditLog).Doc(e.ID), writeCreate, toAuditDoc(e))
	return nil
}

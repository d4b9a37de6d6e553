package memory

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/betwatch/casekeeper/pkg/domain/interfaces"
	"github.com/betwatch/casekeeper/pkg/domain/model"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory keeps every entity in process memory. Transactions are serialized by a single lock and
// rolled back with an undo log.
type Memory struct {
	s *store

	caseRepo   *caseRepository
	incident   *incidentRepository
	assignment *assignmentRepository
	note       *noteRepository
	audit      *auditRepository
	execution  *botExecutionRepository
}

var _ interfaces.Repository = &Memory{}

type store struct {
	mu sync.RWMutex

	cases       map[int64]*model.Case
	incidents   map[int64]*model.Incident
	assignments map[string]*model.Assignment
	active      map[int64]string // incident ID -> active assignment ID
	notes       map[int64]*model.Note
	executions  map[int64]*model.BotExecution
	audit       []*model.AuditLogEntry

	seq map[string]int64
}

func newStore() *store {
	return &store{
		cases:       make(map[int64]*model.Case),
		incidents:   make(map[int64]*model.Incident),
		assignments: make(map[string]*model.Assignment),
		active:      make(map[int64]string),
		notes:       make(map[int64]*model.Note),
		executions:  make(map[int64]*model.BotExecution),
		seq:         make(map[string]int64),
	}
}

// nextID is not rolled back, so IDs of aborted transactions are skipped like a SQL sequence
func (s *store) nextID(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

func New() *Memory {
	s := newStore()
	return &Memory{
		s:          s,
		caseRepo:   &caseRepository{s: s},
		incident:   &incidentRepository{s: s},
		assignment: &assignmentRepository{s: s},
		note:       &noteRepository{s: s},
		audit:      &auditRepository{s: s},
		execution:  &botExecutionRepository{s: s},
	}
}

func (m *Memory) Case() interfaces.CaseRepository {
	return m.caseRepo
}

func (m *Memory) Incident() interfaces.IncidentRepository {
	return m.incident
}

func (m *Memory) Assignment() interfaces.AssignmentRepository {
	return m.assignment
}

func (m *Memory) Note() interfaces.NoteRepository {
	return m.note
}

func (m *Memory) Audit() interfaces.AuditRepository {
	return m.audit
}

func (m *Memory) BotExecution() interfaces.BotExecutionRepository {
	return m.execution
}

// RunInTx holds the store lock for the whole of fn. fn must use tx only; calling the read
// accessors of m from inside fn deadlocks.
func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return goerr.Wrap(err, "transaction not started")
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	tx := &memoryTx{s: m.s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return goerr.Wrap(err, "transaction aborted before commit")
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}

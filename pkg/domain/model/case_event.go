package model

import (
	"time"

	"github.com/betwatch/casekeeper/pkg/domain/types"
)

// CaseEventType is the kind of lifecycle change a notification describes
type CaseEventType string

const (
	CaseEventOpened          CaseEventType = "case_opened"
	CaseEventTransitioned    CaseEventType = "case_transitioned"
	CaseEventIncidentsLinked CaseEventType = "incidents_linked"
)

// CaseEvent is emitted after a lifecycle change has been committed
type CaseEvent struct {
	Type        CaseEventType
	CaseID      int64
	Description string
	From        types.CaseState
	To          types.CaseState
	Actor       types.ActorID
	IncidentIDs []int64
	At          time.Time
}

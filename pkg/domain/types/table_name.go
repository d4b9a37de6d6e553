package types

// TableName names the logical table an audit entry documents
type TableName string

const (
	TableCases         TableName = "cases"
	TableIncidents     TableName = "case-incidents"
	TableAssignments   TableName = "case-incident-assignments"
	TableNotes         TableName = "case-notes"
	TableBotExecutions TableName = "bot-executions"
)

// AllTableNames returns every audited table
func AllTableNames() []TableName {
	return []TableName{
		TableCases,
		TableIncidents,
		TableAssignments,
		TableNotes,
		TableBotExecutions,
	}
}

// IsValid reports whether the table name is one of the audited tables
func (t TableName) IsValid() bool {
	switch t {
	case TableCases,
		TableIncidents,
		TableAssignments,
		TableNotes,
		TableBotExecutions:
		return true
	default:
		return false
	}
}

// String returns the string representation of the table name
func (t TableName) String() string {
	return string(t)
}

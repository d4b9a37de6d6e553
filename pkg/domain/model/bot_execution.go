package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// BotExecution is the immutable summary of one detection run
type BotExecution struct {
	ID                int64     `json:"id"`
	BotID             string    `json:"botId"`
	ExecutedAt        time.Time `json:"executedAt"`
	RecordsProcessed  int64     `json:"recordsProcessed"`
	IncidentsDetected int64     `json:"incidentsDetected"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Validate checks required fields and counters
func (e *BotExecution) Validate() error {
	if strings.TrimSpace(e.BotID) == "" {
		return goerr.Wrap(ErrValidation, "bot id is required")
	}
	if e.ExecutedAt.IsZero() {
		return goerr.Wrap(ErrValidation, "executed_at is required", goerr.V("bot_id", e.BotID))
	}
	if e.RecordsProcessed < 0 || e.IncidentsDetected < 0 {
		return goerr.Wrap(ErrValidation, "execution counters must not be negative",
			goerr.V("records_processed", e.RecordsProcessed),
			goerr.V("incidents_detected", e.IncidentsDetected))
	}
	return nil
}

// Clone returns a copy
func (e *BotExecution) Clone() *BotExecution {
	if e == nil {
		return nil
	}
	copied := *e
	return &copied
}

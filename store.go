package journeyoutbox

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrJourneyNotFound is returned when a journey id has no row.
	ErrJourneyNotFound = errors.New("journeyoutbox: journey not found")
	// ErrDuplicateSegment is returned when (journey id, order) already exists.
	ErrDuplicateSegment = errors.New("journeyoutbox: duplicate segment")
)

// Executor is the minimal surface needed from *sql.Tx, *sql.Conn or *sql.DB.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store encapsulates the DB operations used by the event handlers. Every
// method runs on the executor it is given so callers control transactions.
type Store interface {
	// UpsertJourney inserts a journey or, on id conflict, overwrites its mutable fields.
	UpsertJourney(ctx context.Context, exec Executor, j Journey) error
	// GetJourney loads a journey by id or returns ErrJourneyNotFound.
	GetJourney(ctx context.Context, exec Executor, id string) (Journey, error)
	// ConfirmJourney moves a draft journey to confirmed. It reports false when
	// the row was not in draft state.
	ConfirmJourney(ctx context.Context, exec Executor, id string, at time.Time) (bool, error)
	// UpsertSegment inserts a segment or refreshes the row with the same (journey id, order).
	UpsertSegment(ctx context.Context, exec Executor, s Segment) error
	// DeleteSegmentsAfter removes a journey's segments with an order above order.
	DeleteSegmentsAfter(ctx context.Context, exec Executor, journeyID string, order int) error
	// InsertSegment inserts a segment or returns ErrDuplicateSegment.
	InsertSegment(ctx context.Context, exec Executor, s Segment) error
	// AddOutbox enqueues a message. It reports false when a row with the same Key exists.
	AddOutbox(ctx context.Context, exec Executor, msg Message) (bool, error)
}

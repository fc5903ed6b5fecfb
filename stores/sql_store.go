package stores

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/journeyoutbox"
	"github.com/mickamy/journeyoutbox/internal/ids"
	"github.com/mickamy/journeyoutbox/internal/sqlutil"
)

// Tables names the three tables a store writes to. Empty fields keep the
// defaults.
type Tables struct {
	Journeys string
	Segments string
	Outbox   string
}

// DefaultTables matches the reference schema.
var DefaultTables = Tables{
	Journeys: "journeys",
	Segments: "journey_segments",
	Outbox:   "outbox",
}

func (t Tables) merge(o Tables) Tables {
	if o.Journeys != "" {
		t.Journeys = o.Journeys
	}
	if o.Segments != "" {
		t.Segments = o.Segments
	}
	if o.Outbox != "" {
		t.Outbox = o.Outbox
	}
	return t
}

// dialect holds the SQL that differs between drivers.
type dialect struct {
	quote string
	// numbered rewrites ? placeholders to $1..$n.
	numbered bool
	// upsert renders the conflict clause that updates cols from the proposed row.
	upsert func(conflict []string, cols []string) string
	// ignore renders the conflict clause that leaves the existing row untouched.
	ignore   func(conflict []string) string
	conflict func(error) conflictKind
}

// conflictKind tells which key a unique violation hit.
type conflictKind int

const (
	conflictNone conflictKind = iota
	conflictPrimary
	conflictUnique
)

func onConflictUpsert(conflict []string, cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = excluded." + c
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", "))
}

func onConflictIgnore(conflict []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
}

// sqlStore implements journeyoutbox.Store on database/sql for one dialect.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	tables  Tables
	now     func() time.Time
}

var _ journeyoutbox.Store = (*sqlStore)(nil)

func (s *sqlStore) ident(name string) string {
	return sqlutil.QuoteIdentifier(name, s.dialect.quote)
}

func (s *sqlStore) bind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) UpsertJourney(ctx context.Context, exec journeyoutbox.Executor, j journeyoutbox.Journey) error {
	if j.ID == "" {
		return errors.New("journeyoutbox: journey id is required")
	}
	now := s.now().UTC()
	status := j.Status
	if status == "" {
		status = journeyoutbox.StatusDraft
	}
	query := s.bind(fmt.Sprintf(`
INSERT INTO %s (id, user_id, origin_crs, destination_crs, departure_time, arrival_time, journey_type, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
%s`,
		s.ident(s.tables.Journeys),
		s.dialect.upsert([]string{"id"}, []string{
			"user_id", "origin_crs", "destination_crs", "departure_time", "arrival_time", "journey_type", "updated_at",
		}),
	))
	_, err := exec.ExecContext(ctx, query,
		j.ID, j.UserID, j.OriginCRS, j.DestinationCRS,
		j.DepartureAt.UTC(), j.ArrivalAt.UTC(), string(j.Type), string(status),
		now, now,
	)
	return err
}

func (s *sqlStore) GetJourney(ctx context.Context, exec journeyoutbox.Executor, id string) (journeyoutbox.Journey, error) {
	query := s.bind(fmt.Sprintf(`
SELECT id, user_id, origin_crs, destination_crs, departure_time, arrival_time, journey_type, status, confirmed_at, created_at, updated_at
FROM %s WHERE id = ?`, s.ident(s.tables.Journeys)))

	var (
		j           journeyoutbox.Journey
		typ, status string
		confirmedAt sql.NullTime
	)
	err := exec.QueryRowContext(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.OriginCRS, &j.DestinationCRS,
		&j.DepartureAt, &j.ArrivalAt, &typ, &status,
		&confirmedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return journeyoutbox.Journey{}, journeyoutbox.ErrJourneyNotFound
	}
	if err != nil {
		return journeyoutbox.Journey{}, err
	}
	j.Type = journeyoutbox.JourneyType(typ)
	j.Status = journeyoutbox.JourneyStatus(status)
	j.ConfirmedAt = sqlutil.NullableTime(confirmedAt)
	return j, nil
}

func (s *sqlStore) ConfirmJourney(ctx context.Context, exec journeyoutbox.Executor, id string, at time.Time) (bool, error) {
	query := s.bind(fmt.Sprintf(
		"UPDATE %s SET status = ?, confirmed_at = ?, updated_at = ? WHERE id = ? AND status = ?",
		s.ident(s.tables.Journeys),
	))
	res, err := exec.ExecContext(ctx, query,
		string(journeyoutbox.StatusConfirmed), at.UTC(), s.now().UTC(), id, string(journeyoutbox.StatusDraft),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var segmentColumns = []string{
	"rid", "toc_code", "origin_crs", "destination_crs", "scheduled_departure", "scheduled_arrival",
}

func (s *sqlStore) segmentInsert() string {
	return fmt.Sprintf(`
INSERT INTO %s (id, journey_id, segment_order, rid, toc_code, origin_crs, destination_crs, scheduled_departure, scheduled_arrival, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.ident(s.tables.Segments))
}

func (s *sqlStore) segmentArgs(seg journeyoutbox.Segment) []any {
	return []any{
		seg.ID, seg.JourneyID, seg.Order, seg.RID, seg.TOC, seg.OriginCRS, seg.DestinationCRS,
		seg.DepartureAt.UTC(), seg.ArrivalAt.UTC(), s.now().UTC(),
	}
}

func (s *sqlStore) UpsertSegment(ctx context.Context, exec journeyoutbox.Executor, seg journeyoutbox.Segment) error {
	query := s.bind(s.segmentInsert() + "\n" + s.dialect.upsert([]string{"journey_id", "segment_order"}, segmentColumns))
	_, err := exec.ExecContext(ctx, query, s.segmentArgs(seg)...)
	return err
}

func (s *sqlStore) DeleteSegmentsAfter(ctx context.Context, exec journeyoutbox.Executor, journeyID string, order int) error {
	query := s.bind(fmt.Sprintf("DELETE FROM %s WHERE journey_id = ? AND segment_order > ?", s.ident(s.tables.Segments)))
	_, err := exec.ExecContext(ctx, query, journeyID, order)
	return err
}

func (s *sqlStore) InsertSegment(ctx context.Context, exec journeyoutbox.Executor, seg journeyoutbox.Segment) error {
	_, err := exec.ExecContext(ctx, s.bind(s.segmentInsert()), s.segmentArgs(seg)...)
	if err == nil {
		return nil
	}
	switch s.dialect.conflict(err) {
	case conflictUnique:
		return fmt.Errorf("%w: journey %s order %d", journeyoutbox.ErrDuplicateSegment, seg.JourneyID, seg.Order)
	case conflictPrimary:
		// Replaying a row reports the id clash first; only the same (journey, order) is a duplicate.
		if s.segmentAt(ctx, exec, seg) {
			return fmt.Errorf("%w: journey %s order %d", journeyoutbox.ErrDuplicateSegment, seg.JourneyID, seg.Order)
		}
		return fmt.Errorf("segment id %s already recorded under another journey or order: %w", seg.ID, err)
	}
	return err
}

// segmentAt reports whether seg.ID is stored at seg's journey and order.
func (s *sqlStore) segmentAt(ctx context.Context, exec journeyoutbox.Executor, seg journeyoutbox.Segment) bool {
	query := s.bind(fmt.Sprintf("SELECT journey_id, segment_order FROM %s WHERE id = ?", s.ident(s.tables.Segments)))
	var (
		journeyID string
		order     int
	)
	if err := exec.QueryRowContext(ctx, query, seg.ID).Scan(&journeyID, &order); err != nil {
		return false
	}
	return journeyID == seg.JourneyID && order == seg.Order
}

func (s *sqlStore) AddOutbox(ctx context.Context, exec journeyoutbox.Executor, msg journeyoutbox.Message) (bool, error) {
	payload, err := msg.MarshalPayload()
	if err != nil {
		return false, err
	}
	now := s.now().UTC()
	query := s.bind(fmt.Sprintf(`
INSERT INTO %s (id, aggregate_type, aggregate_id, event_type, payload, correlation_id, idempotency_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
%s`, s.ident(s.tables.Outbox), s.dialect.ignore([]string{"idempotency_key"})))

	// MySQL JSON columns reject binary-charset arguments, so payload goes as text.
	res, err := exec.ExecContext(ctx, query,
		ids.NewULID(now), msg.AggregateType, msg.AggregateID, msg.EventType, string(payload),
		sqlutil.NullIfEmpty(msg.CorrelationID), sqlutil.NullIfEmpty(msg.Key), now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OutboxEvents returns the outbox rows for an aggregate in insertion order.
func (s *sqlStore) OutboxEvents(ctx context.Context, aggregateID string) ([]journeyoutbox.OutboxEvent, error) {
	query := s.bind(fmt.Sprintf(`
SELECT id, aggregate_type, aggregate_id, event_type, payload, correlation_id, created_at, processed_at
FROM %s WHERE aggregate_id = ? ORDER BY id`, s.ident(s.tables.Outbox)))

	rows, err := s.db.QueryContext(ctx, query, aggregateID)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var events []journeyoutbox.OutboxEvent
	for rows.Next() {
		var (
			ev            journeyoutbox.OutboxEvent
			payload       []byte
			correlationID sql.NullString
			processedAt   sql.NullTime
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.EventType, &payload, &correlationID, &ev.CreatedAt, &processedAt); err != nil {
			return nil, err
		}
		ev.Payload = bytes.Clone(payload)
		ev.CorrelationID = sqlutil.NullableString(correlationID)
		ev.ProcessedAt = sqlutil.NullableTime(processedAt)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Segments returns a journey's segments ordered by segment_order.
func (s *sqlStore) Segments(ctx context.Context, journeyID string) ([]journeyoutbox.Segment, error) {
	query := s.bind(fmt.Sprintf(`
SELECT id, journey_id, segment_order, rid, toc_code, origin_crs, destination_crs, scheduled_departure, scheduled_arrival
FROM %s WHERE journey_id = ? ORDER BY segment_order`, s.ident(s.tables.Segments)))

	rows, err := s.db.QueryContext(ctx, query, journeyID)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var segments []journeyoutbox.Segment
	for rows.Next() {
		var seg journeyoutbox.Segment
		if err := rows.Scan(&seg.ID, &seg.JourneyID, &seg.Order, &seg.RID, &seg.TOC, &seg.OriginCRS, &seg.DestinationCRS, &seg.DepartureAt, &seg.ArrivalAt); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

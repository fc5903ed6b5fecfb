package validate

import (
	"regexp"
	"strings"
	"time"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d(:[0-5]\d)?$`)

// LegTime is either a local wall-clock time or a full instant.
type LegTime struct {
	// Clock is the offset from midnight when the leg carries a local time.
	Clock time.Duration
	// Absolute is set when the leg carries a full ISO-8601 datetime.
	Absolute *time.Time
}

// On places the leg time on day. Absolute times ignore day.
func (lt LegTime) On(day time.Time) time.Time {
	if lt.Absolute != nil {
		return *lt.Absolute
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, day.Location()).Add(lt.Clock)
}

// ParseLegTime accepts "HH:MM", "HH:MM:SS" or an ISO-8601 datetime.
func ParseLegTime(s string) (LegTime, bool) {
	if t, ok := ParseDateTime(s); ok {
		return LegTime{Absolute: &t}, true
	}
	if !clockPattern.MatchString(s) {
		return LegTime{}, false
	}
	parts := strings.Split(s, ":")
	d := time.Duration(atoi2(parts[0]))*time.Hour + time.Duration(atoi2(parts[1]))*time.Minute
	if len(parts) == 3 {
		d += time.Duration(atoi2(parts[2])) * time.Second
	}
	return LegTime{Clock: d}, true
}

func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

// Leg is one validated itinerary leg of a journey.created event.
type Leg struct {
	From      string
	To        string
	Departure LegTime
	Arrival   LegTime
	// Operator is the structured identifier as sent upstream, e.g. "1:GW".
	Operator string
	// TOC is the operator code carried by Operator.
	TOC string
	// RID is the railway identifier when the producer supplied one.
	RID string
}

// TOCFromOperator extracts the operator code from "<feed>:<TOC>" or a bare TOC.
func TOCFromOperator(operator string) string {
	if i := strings.LastIndex(operator, ":"); i >= 0 {
		return operator[i+1:]
	}
	return operator
}

// Legs validates the optional "legs" array. Each element's required string
// fields are checked in order and the first failure is reported by path.
func Legs(f Fields) Result[[]Leg] {
	items := f.Objects("legs", false)
	if !items.OK() {
		return Forward[[]Leg](items)
	}
	legs := make([]Leg, 0, len(items.Value()))
	for _, item := range items.Value() {
		leg := legOf(item)
		if !leg.OK() {
			return Forward[[]Leg](leg)
		}
		legs = append(legs, leg.Value())
	}
	return Valid(legs)
}

func legOf(f Fields) Result[Leg] {
	from := f.String("from")
	if !from.OK() {
		return Forward[Leg](from)
	}
	to := f.String("to")
	if !to.OK() {
		return Forward[Leg](to)
	}
	dep := legTime(f, "departure")
	if !dep.OK() {
		return Forward[Leg](dep)
	}
	arr := legTime(f, "arrival")
	if !arr.OK() {
		return Forward[Leg](arr)
	}
	op := f.String("operator")
	if !op.OK() {
		return Forward[Leg](op)
	}
	toc := TOCFromOperator(op.Value())
	if !IsTOC(toc) {
		return Invalid[Leg](f.Path("operator"), "must carry a 2-letter uppercase TOC code")
	}
	rid := f.OptionalString("rid")
	if !rid.OK() {
		return Forward[Leg](rid)
	}
	return Valid(Leg{
		From:      from.Value(),
		To:        to.Value(),
		Departure: dep.Value(),
		Arrival:   arr.Value(),
		Operator:  op.Value(),
		TOC:       toc,
		RID:       rid.Value(),
	})
}

func legTime(f Fields, name string) Result[LegTime] {
	s := f.String(name)
	if !s.OK() {
		return Forward[LegTime](s)
	}
	lt, ok := ParseLegTime(s.Value())
	if !ok {
		return Invalid[LegTime](f.Path(name), "must be HH:MM[:SS] or an ISO-8601 datetime")
	}
	return Valid(lt)
}

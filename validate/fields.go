package validate

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	crsPattern      = regexp.MustCompile(`^[A-Z]{3}$`)
	tocPattern      = regexp.MustCompile(`^[A-Z]{2}$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?$`)
)

// IsCRS reports whether s is a 3-letter uppercase station code.
func IsCRS(s string) bool { return crsPattern.MatchString(s) }

// IsTOC reports whether s is a 2-letter uppercase operator code.
func IsTOC(s string) bool { return tocPattern.MatchString(s) }

// IsUUID reports whether s is a UUID in canonical 8-4-4-4-12 form.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// ParseDateTime accepts ISO-8601 "YYYY-MM-DDTHH:MM:SS[.fff][Z]" and rejects
// strings that match the shape but name no real instant. Values without a
// trailing Z are read as UTC.
func ParseDateTime(s string) (time.Time, bool) {
	if !dateTimePattern.MatchString(s) {
		return time.Time{}, false
	}
	if s[len(s)-1] == 'Z' {
		s = s[:len(s)-1]
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Contiguous reports whether orders is exactly the set {1..len(orders)}.
func Contiguous(orders []int) bool {
	sorted := append([]int(nil), orders...)
	sort.Ints(sorted)
	for i, o := range sorted {
		if o != i+1 {
			return false
		}
	}
	return true
}

// Fields reads values out of a decoded JSON object. Failures are reported
// under the object's path prefix.
type Fields struct {
	obj    map[string]any
	prefix string
}

// Object wraps a top-level payload.
func Object(obj map[string]any) Fields {
	return Fields{obj: obj}
}

// Path returns the reported path of name inside this object.
func (f Fields) Path(name string) string {
	if f.prefix == "" {
		return name
	}
	return f.prefix + "." + name
}

// Has reports whether name is present and not null.
func (f Fields) Has(name string) bool {
	v, ok := f.obj[name]
	return ok && v != nil
}

// String requires a non-empty string.
func (f Fields) String(name string) Result[string] {
	v, ok := f.obj[name]
	if !ok || v == nil {
		return Invalid[string](f.Path(name), "is required")
	}
	s, ok := v.(string)
	if !ok {
		return Invalid[string](f.Path(name), "must be a string")
	}
	if s == "" {
		return Invalid[string](f.Path(name), "must not be empty")
	}
	return Valid(s)
}

// OptionalString accepts an absent or null field as "".
func (f Fields) OptionalString(name string) Result[string] {
	if !f.Has(name) {
		return Valid("")
	}
	s, ok := f.obj[name].(string)
	if !ok {
		return Invalid[string](f.Path(name), "must be a string")
	}
	return Valid(s)
}

// CRS requires a 3-letter uppercase station code.
func (f Fields) CRS(name string) Result[string] {
	r := f.String(name)
	if !r.OK() {
		return r
	}
	if !IsCRS(r.Value()) {
		return Invalid[string](f.Path(name), "must be a 3-letter uppercase CRS code")
	}
	return r
}

// TOC requires a 2-letter uppercase operator code.
func (f Fields) TOC(name string) Result[string] {
	r := f.String(name)
	if !r.OK() {
		return r
	}
	if !IsTOC(r.Value()) {
		return Invalid[string](f.Path(name), "must be a 2-letter uppercase TOC code")
	}
	return r
}

// UUID requires a canonical UUID string.
func (f Fields) UUID(name string) Result[string] {
	r := f.String(name)
	if !r.OK() {
		return r
	}
	if !IsUUID(r.Value()) {
		return Invalid[string](f.Path(name), "must be a UUID")
	}
	return r
}

// DateTime requires an ISO-8601 datetime naming a real instant.
func (f Fields) DateTime(name string) Result[time.Time] {
	r := f.String(name)
	if !r.OK() {
		return Forward[time.Time](r)
	}
	t, ok := ParseDateTime(r.Value())
	if !ok {
		return Invalid[time.Time](f.Path(name), "must be an ISO-8601 datetime")
	}
	return Valid(t)
}

// PositiveInt requires a JSON number that is a whole number >= 1.
func (f Fields) PositiveInt(name string) Result[int] {
	v, ok := f.obj[name]
	if !ok || v == nil {
		return Invalid[int](f.Path(name), "is required")
	}
	n, ok := v.(float64)
	if !ok || n != math.Trunc(n) || n > math.MaxInt32 {
		return Invalid[int](f.Path(name), "must be an integer")
	}
	if n < 1 {
		return Invalid[int](f.Path(name), "must be >= 1")
	}
	return Valid(int(n))
}

// Objects reads an array of objects. An absent or null field is valid and
// empty unless required is set.
func (f Fields) Objects(name string, required bool) Result[[]Fields] {
	if !f.Has(name) {
		if required {
			return Invalid[[]Fields](f.Path(name), "is required")
		}
		return Valid[[]Fields](nil)
	}
	items, ok := f.obj[name].([]any)
	if !ok {
		return Invalid[[]Fields](f.Path(name), "must be an array")
	}
	out := make([]Fields, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("%s[%d]", f.Path(name), i)
		obj, ok := item.(map[string]any)
		if !ok {
			return Invalid[[]Fields](path, "must be an object")
		}
		out = append(out, Fields{obj: obj, prefix: path})
	}
	return Valid(out)
}

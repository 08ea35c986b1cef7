package senml

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// WallClockLayout is the timestamp format used for measures whose pack
// carries no time at all. It is UTC with microsecond precision and no zone.
const WallClockLayout = "2006-01-02T15:04:05.000000"

// Pack is a decoded SenML pack.
type Pack struct {
	BaseName  string   `json:"bn"`
	BaseTime  *float64 `json:"bt,omitempty"`
	BaseUnits string   `json:"bu,omitempty"`
	BaseValue *float64 `json:"bv,omitempty"`
	BaseSum   *float64 `json:"bs,omitempty"`
	Version   *int     `json:"ver,omitempty"`
	Records   []Record `json:"e"`
}

// Record is a single entry of a pack.
type Record struct {
	Name        string   `json:"n"`
	Units       string   `json:"u,omitempty"`
	Value       *float64 `json:"v,omitempty"`
	BoolValue   *bool    `json:"vb,omitempty"`
	Sum         *float64 `json:"s,omitempty"`
	StringValue *string  `json:"vs,omitempty"`
	DataValue   *string  `json:"vd,omitempty"`
	Time        *float64 `json:"t,omitempty"`
	UpdateTime  *float64 `json:"ut,omitempty"`
}

// HasValue reports whether the record carries a value the backend can store.
// String and data values are not forwarded.
func (r Record) HasValue() bool {
	return r.Value != nil || r.BoolValue != nil || r.Sum != nil
}

// Timestamp is either seconds since the epoch, taken from the pack, or a
// wall clock reading when the pack has no time information.
type Timestamp struct {
	epoch float64
	wall  time.Time
}

func EpochTimestamp(seconds float64) Timestamp {
	return Timestamp{epoch: seconds}
}

func WallTimestamp(t time.Time) Timestamp {
	return Timestamp{wall: t.UTC()}
}

// Epoch returns the epoch seconds and true, or false for a wall clock reading.
func (t Timestamp) Epoch() (float64, bool) {
	if !t.wall.IsZero() {
		return 0, false
	}
	return t.epoch, true
}

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	if !t.wall.IsZero() {
		return t.wall
	}
	sec, frac := splitSeconds(t.epoch)
	return time.Unix(sec, frac).UTC()
}

func (t Timestamp) String() string {
	if !t.wall.IsZero() {
		return t.wall.Format(WallClockLayout)
	}
	return strconv.FormatFloat(t.epoch, 'f', -1, 64)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.wall.IsZero() {
		return json.Marshal(t.wall.Format(WallClockLayout))
	}
	return json.Marshal(t.epoch)
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*t = EpochTimestamp(v)
	case string:
		parsed, err := time.Parse(WallClockLayout, v)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", v, err)
		}
		*t = WallTimestamp(parsed)
	default:
		return fmt.Errorf("invalid timestamp %s", string(data))
	}
	return nil
}

// Value is a numeric or boolean measure value.
type Value struct {
	number  float64
	boolean bool
	isBool  bool
}

func NumberValue(f float64) Value {
	return Value{number: f}
}

func BoolValue(b bool) Value {
	return Value{boolean: b, isBool: true}
}

func (v Value) Float() (float64, bool) {
	return v.number, !v.isBool
}

func (v Value) Bool() (bool, bool) {
	return v.boolean, v.isBool
}

// Interface returns the value as a float64 or bool.
func (v Value) Interface() interface{} {
	if v.isBool {
		return v.boolean
	}
	return v.number
}

func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.boolean)
	}
	return strconv.FormatFloat(v.number, 'f', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch x := raw.(type) {
	case float64:
		*v = NumberValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("invalid measure value %s", string(data))
	}
	return nil
}

// Measure is one (timestamp, value) point of a metric.
type Measure struct {
	Timestamp Timestamp `json:"timestamp"`
	Value     Value     `json:"value"`
}

// Batch maps metric names to their measures in record order.
type Batch map[string][]Measure

func (b Batch) Add(metric string, m Measure) {
	b[metric] = append(b[metric], m)
}

// Metrics returns the metric names in sorted order.
func (b Batch) Metrics() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Measures counts the measures across all metrics.
func (b Batch) Measures() int {
	n := 0
	for _, ms := range b {
		n += len(ms)
	}
	return n
}

func (b Batch) Empty() bool {
	return len(b) == 0
}

func splitSeconds(f float64) (int64, int64) {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return sec, nsec
}

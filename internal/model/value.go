package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Address is the structured postal value of an Address field.
type Address struct {
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Zip           string `json:"zip,omitempty"`
	Country       string `json:"country,omitempty"`
}

// IsZero reports whether every component of the address is blank.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Contact is the structured value of a Contact field.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsZero reports whether every component of the contact is blank.
func (c Contact) IsZero() bool {
	return c == Contact{}
}

// Value holds the data of one ResourceField. Only the slot matching the
// Field's type is meaningful; the rest stay nil.
type Value struct {
	String     *string    `json:"string,omitempty"`
	Number     *float64   `json:"number,omitempty"`
	Boolean    *bool      `json:"boolean,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	OptionID   *string    `json:"optionId,omitempty"`
	OptionIDs  []string   `json:"optionIds,omitempty"`
	UserID     *string    `json:"userId,omitempty"`
	FileID     *string    `json:"fileId,omitempty"`
	FileIDs    []string   `json:"fileIds,omitempty"`
	ResourceID *string    `json:"resourceId,omitempty"`
	Address    *Address   `json:"address,omitempty"`
	Contact    *Contact   `json:"contact,omitempty"`
}

// Constructors for the common slots.

func TextValue(s string) Value       { return Value{String: &s} }
func NumberValue(n float64) Value    { return Value{Number: &n} }
func BoolValue(b bool) Value         { return Value{Boolean: &b} }
func OptionValue(id string) Value    { return Value{OptionID: &id} }
func UserValue(id string) Value      { return Value{UserID: &id} }
func FileValue(id string) Value      { return Value{FileID: &id} }
func ResourceValue(id string) Value  { return Value{ResourceID: &id} }
func FilesValue(ids ...string) Value { return Value{FileIDs: ids} }

// DateValue returns a Date value truncated to the UTC calendar day.
func DateValue(t time.Time) Value {
	d := TruncateDate(t)
	return Value{Date: &d}
}

// TruncateDate drops the time-of-day of t in UTC.
func TruncateDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts either YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a YYYY-MM-DD date or RFC 3339 timestamp")
	}
	return TruncateDate(t), nil
}

// IsEmpty reports whether the slot for kind t holds nothing.
func (v Value) IsEmpty(t FieldType) bool {
	empty, err := MatchKind[bool](t, emptyCases{v})
	return err != nil || empty
}

// Equal reports whether v and o hold the same data in the slot for kind t.
func (v Value) Equal(t FieldType, o Value) bool {
	eq, err := MatchKind[bool](t, equalCases{v, o})
	return err == nil && eq
}

// Display maps the slot for kind t to a plain JSON-friendly value
// (nil when empty).
func (v Value) Display(t FieldType) any {
	if v.IsEmpty(t) {
		return nil
	}
	out, _ := MatchKind[any](t, displayCases{v})
	return out
}

// OnlySlot returns a copy of v with every slot but the one for kind t
// cleared.
func (v Value) OnlySlot(t FieldType) Value {
	out, _ := MatchKind[Value](t, slotCases{v})
	return out
}

// FoldEqual compares two text values case-insensitively.
func FoldEqual(a, b string) bool {
	c := cases.Fold()
	return c.String(strings.TrimSpace(a)) == c.String(strings.TrimSpace(b))
}

func strEmpty(s *string) bool { return s == nil || *s == "" }

type emptyCases struct{ v Value }

func (c emptyCases) Text() bool        { return strEmpty(c.v.String) }
func (c emptyCases) Textarea() bool    { return strEmpty(c.v.String) }
func (c emptyCases) Number() bool      { return c.v.Number == nil }
func (c emptyCases) Money() bool       { return c.v.Number == nil }
func (c emptyCases) Checkbox() bool    { return c.v.Boolean == nil }
func (c emptyCases) Date() bool        { return c.v.Date == nil }
func (c emptyCases) Select() bool      { return strEmpty(c.v.OptionID) }
func (c emptyCases) MultiSelect() bool { return len(c.v.OptionIDs) == 0 }
func (c emptyCases) User() bool        { return strEmpty(c.v.UserID) }
func (c emptyCases) Contact() bool     { return c.v.Contact == nil || c.v.Contact.IsZero() }
func (c emptyCases) Address() bool     { return c.v.Address == nil || c.v.Address.IsZero() }
func (c emptyCases) File() bool        { return strEmpty(c.v.FileID) }
func (c emptyCases) Files() bool       { return len(c.v.FileIDs) == 0 }
func (c emptyCases) Resource() bool    { return strEmpty(c.v.ResourceID) }

type equalCases struct{ a, b Value }

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqStr(a, b *string) bool {
	if strEmpty(a) || strEmpty(b) {
		return strEmpty(a) == strEmpty(b)
	}
	return *a == *b
}

func (c equalCases) Text() bool        { return eqStr(c.a.String, c.b.String) }
func (c equalCases) Textarea() bool    { return eqStr(c.a.String, c.b.String) }
func (c equalCases) Number() bool      { return eqPtr(c.a.Number, c.b.Number) }
func (c equalCases) Money() bool       { return eqPtr(c.a.Number, c.b.Number) }
func (c equalCases) Checkbox() bool    { return eqPtr(c.a.Boolean, c.b.Boolean) }
func (c equalCases) Select() bool      { return eqStr(c.a.OptionID, c.b.OptionID) }
func (c equalCases) MultiSelect() bool { return slices.Equal(c.a.OptionIDs, c.b.OptionIDs) }
func (c equalCases) User() bool        { return eqStr(c.a.UserID, c.b.UserID) }
func (c equalCases) Contact() bool     { return eqPtr(c.a.Contact, c.b.Contact) }
func (c equalCases) Address() bool     { return eqPtr(c.a.Address, c.b.Address) }
func (c equalCases) File() bool        { return eqStr(c.a.FileID, c.b.FileID) }
func (c equalCases) Files() bool       { return slices.Equal(c.a.FileIDs, c.b.FileIDs) }
func (c equalCases) Resource() bool    { return eqStr(c.a.ResourceID, c.b.ResourceID) }

func (c equalCases) Date() bool {
	if c.a.Date == nil || c.b.Date == nil {
		return c.a.Date == c.b.Date
	}
	return c.a.Date.Equal(*c.b.Date)
}

type displayCases struct{ v Value }

func (c displayCases) Text() any        { return *c.v.String }
func (c displayCases) Textarea() any    { return *c.v.String }
func (c displayCases) Number() any      { return *c.v.Number }
func (c displayCases) Money() any       { return *c.v.Number }
func (c displayCases) Checkbox() any    { return *c.v.Boolean }
func (c displayCases) Date() any        { return c.v.Date.Format(time.DateOnly) }
func (c displayCases) Select() any      { return *c.v.OptionID }
func (c displayCases) MultiSelect() any { return c.v.OptionIDs }
func (c displayCases) User() any        { return *c.v.UserID }
func (c displayCases) Contact() any     { return *c.v.Contact }
func (c displayCases) Address() any     { return *c.v.Address }
func (c displayCases) File() any        { return *c.v.FileID }
func (c displayCases) Files() any       { return c.v.FileIDs }
func (c displayCases) Resource() any    { return *c.v.ResourceID }

type slotCases struct{ v Value }

func (c slotCases) Text() Value        { return Value{String: c.v.String} }
func (c slotCases) Textarea() Value    { return Value{String: c.v.String} }
func (c slotCases) Number() Value      { return Value{Number: c.v.Number} }
func (c slotCases) Money() Value       { return Value{Number: c.v.Number} }
func (c slotCases) Checkbox() Value    { return Value{Boolean: c.v.Boolean} }
func (c slotCases) Date() Value        { return Value{Date: c.v.Date} }
func (c slotCases) Select() Value      { return Value{OptionID: c.v.OptionID} }
func (c slotCases) MultiSelect() Value { return Value{OptionIDs: c.v.OptionIDs} }
func (c slotCases) User() Value        { return Value{UserID: c.v.UserID} }
func (c slotCases) Contact() Value     { return Value{Contact: c.v.Contact} }
func (c slotCases) Address() Value     { return Value{Address: c.v.Address} }
func (c slotCases) File() Value        { return Value{FileID: c.v.FileID} }
func (c slotCases) Files() Value       { return Value{FileIDs: c.v.FileIDs} }
func (c slotCases) Resource() Value    { return Value{ResourceID: c.v.ResourceID} }

// MarshalValue encodes a Value for a JSONB column; empty values encode as nil.
func MarshalValue(v Value) ([]byte, error) {
	if v.isBlank() {
		return nil, nil
	}
	return json.Marshal(v)
}

func (v Value) isBlank() bool {
	return v.String == nil && v.Number == nil && v.Boolean == nil && v.Date == nil &&
		v.OptionID == nil && len(v.OptionIDs) == 0 && v.UserID == nil && v.FileID == nil &&
		len(v.FileIDs) == 0 && v.ResourceID == nil && v.Address == nil && v.Contact == nil
}

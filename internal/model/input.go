package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Wire keys of a ValueInput, one per storage slot.
const (
	InputString     = "string"
	InputNumber     = "number"
	InputBoolean    = "boolean"
	InputDate       = "date"
	InputOptionID   = "optionId"
	InputOptionIDs  = "optionIds"
	InputUserID     = "userId"
	InputFileID     = "fileId"
	InputFileIDs    = "fileIds"
	InputResourceID = "resourceId"
	InputAddress    = "address"
	InputContact    = "contact"
)

// ValueInput is the tagged write payload for one field: exactly one key
// is set, and it must match the target Field's type. A key set to JSON
// null clears the field.
type ValueInput struct {
	key string
	raw Value
}

// Key returns the wire key the input carries.
func (in ValueInput) Key() string { return in.key }

// Input constructors, one per wire key.

func StringInput(s string) ValueInput  { return ValueInput{key: InputString, raw: Value{String: &s}} }
func NumberInput(n float64) ValueInput { return ValueInput{key: InputNumber, raw: Value{Number: &n}} }
func BoolInput(b bool) ValueInput      { return ValueInput{key: InputBoolean, raw: Value{Boolean: &b}} }
func DateInput(t time.Time) ValueInput {
	d := TruncateDate(t)
	return ValueInput{key: InputDate, raw: Value{Date: &d}}
}
func OptionInput(id string) ValueInput { return ValueInput{key: InputOptionID, raw: Value{OptionID: &id}} }
func OptionsInput(ids ...string) ValueInput {
	return ValueInput{key: InputOptionIDs, raw: Value{OptionIDs: ids}}
}
func UserInput(id string) ValueInput  { return ValueInput{key: InputUserID, raw: Value{UserID: &id}} }
func FileInput(id string) ValueInput  { return ValueInput{key: InputFileID, raw: Value{FileID: &id}} }
func FilesInput(ids ...string) ValueInput {
	return ValueInput{key: InputFileIDs, raw: Value{FileIDs: ids}}
}
func ResourceInput(id string) ValueInput {
	return ValueInput{key: InputResourceID, raw: Value{ResourceID: &id}}
}
func AddressInput(a Address) ValueInput { return ValueInput{key: InputAddress, raw: Value{Address: &a}} }
func ContactInput(c Contact) ValueInput { return ValueInput{key: InputContact, raw: Value{Contact: &c}} }

// ClearInput returns an input that empties a field of kind t.
func ClearInput(t FieldType) ValueInput {
	key, _ := MatchKind[string](t, inputKeys{})
	return ValueInput{key: key}
}

// InputFor returns the input that writes v into a field of kind t.
func InputFor(t FieldType, v Value) ValueInput {
	key, _ := MatchKind[string](t, inputKeys{})
	return ValueInput{key: key, raw: v.OnlySlot(t)}
}

// InputKey returns the wire key accepted by fields of kind t.
func InputKey(t FieldType) (string, error) {
	return MatchKind[string](t, inputKeys{})
}

// ValueFromInput maps a wire input onto the storage Value for kind t.
// Supplying the wrong key for the type is a caller error.
func ValueFromInput(t FieldType, in ValueInput) (Value, error) {
	want, err := MatchKind[string](t, inputKeys{})
	if err != nil {
		return Value{}, err
	}
	if in.key != want {
		return Value{}, fmt.Errorf("%w: %s field expects %q, got %q", ErrWrongValueKind, t, want, in.key)
	}
	v := in.raw.OnlySlot(t)
	if v.Date != nil {
		d := TruncateDate(*v.Date)
		v.Date = &d
	}
	return v, nil
}

type inputKeys struct{}

func (inputKeys) Text() string        { return InputString }
func (inputKeys) Textarea() string    { return InputString }
func (inputKeys) Number() string      { return InputNumber }
func (inputKeys) Money() string       { return InputNumber }
func (inputKeys) Checkbox() string    { return InputBoolean }
func (inputKeys) Date() string        { return InputDate }
func (inputKeys) Select() string      { return InputOptionID }
func (inputKeys) MultiSelect() string { return InputOptionIDs }
func (inputKeys) User() string        { return InputUserID }
func (inputKeys) Contact() string     { return InputContact }
func (inputKeys) Address() string     { return InputAddress }
func (inputKeys) File() string        { return InputFileID }
func (inputKeys) Files() string       { return InputFileIDs }
func (inputKeys) Resource() string    { return InputResourceID }

// UnmarshalJSON decodes {"<key>": <value>} and rejects anything but a
// single known key.
func (in *ValueInput) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("value must be a JSON object: %w", err)
	}
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("value must have exactly one key, got [%s]", strings.Join(keys, ", "))
	}
	for key, raw := range m {
		in.key = key
		in.raw = Value{}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil
		}
		var err error
		switch key {
		case InputString:
			err = json.Unmarshal(raw, &in.raw.String)
		case InputNumber:
			err = json.Unmarshal(raw, &in.raw.Number)
		case InputBoolean:
			err = json.Unmarshal(raw, &in.raw.Boolean)
		case InputDate:
			var s string
			if err = json.Unmarshal(raw, &s); err == nil {
				var d time.Time
				if d, err = ParseDate(s); err == nil {
					in.raw.Date = &d
				}
			}
		case InputOptionID:
			err = json.Unmarshal(raw, &in.raw.OptionID)
		case InputOptionIDs:
			err = json.Unmarshal(raw, &in.raw.OptionIDs)
		case InputUserID:
			err = json.Unmarshal(raw, &in.raw.UserID)
		case InputFileID:
			err = json.Unmarshal(raw, &in.raw.FileID)
		case InputFileIDs:
			err = json.Unmarshal(raw, &in.raw.FileIDs)
		case InputResourceID:
			err = json.Unmarshal(raw, &in.raw.ResourceID)
		case InputAddress:
			err = json.Unmarshal(raw, &in.raw.Address)
		case InputContact:
			err = json.Unmarshal(raw, &in.raw.Contact)
		default:
			return fmt.Errorf("unknown value key %q", key)
		}
		if err != nil {
			return fmt.Errorf("value %q: %w", key, err)
		}
	}
	return nil
}

// MarshalJSON encodes the input as {"<key>": <value>}.
func (in ValueInput) MarshalJSON() ([]byte, error) {
	if in.key == "" {
		return []byte("{}"), nil
	}
	var payload any
	v := in.raw
	switch in.key {
	case InputString:
		payload = v.String
	case InputNumber:
		payload = v.Number
	case InputBoolean:
		payload = v.Boolean
	case InputDate:
		if v.Date != nil {
			payload = v.Date.Format(time.DateOnly)
		}
	case InputOptionID:
		payload = v.OptionID
	case InputOptionIDs:
		payload = v.OptionIDs
	case InputUserID:
		payload = v.UserID
	case InputFileID:
		payload = v.FileID
	case InputFileIDs:
		payload = v.FileIDs
	case InputResourceID:
		payload = v.ResourceID
	case InputAddress:
		payload = v.Address
	case InputContact:
		payload = v.Contact
	}
	return json.Marshal(map[string]any{in.key: payload})
}

package model

import "fmt"

// FieldType identifies the kind of value a Field holds.
type FieldType string

const (
	FieldTypeText        FieldType = "Text"
	FieldTypeTextarea    FieldType = "Textarea"
	FieldTypeNumber      FieldType = "Number"
	FieldTypeMoney       FieldType = "Money"
	FieldTypeCheckbox    FieldType = "Checkbox"
	FieldTypeDate        FieldType = "Date"
	FieldTypeSelect      FieldType = "Select"
	FieldTypeMultiSelect FieldType = "MultiSelect"
	FieldTypeUser        FieldType = "User"
	FieldTypeContact     FieldType = "Contact"
	FieldTypeAddress     FieldType = "Address"
	FieldTypeFile        FieldType = "File"
	FieldTypeFiles       FieldType = "Files"
	FieldTypeResource    FieldType = "Resource"
)

// FieldTypes lists every kind in declaration order.
var FieldTypes = []FieldType{
	FieldTypeText, FieldTypeTextarea, FieldTypeNumber, FieldTypeMoney,
	FieldTypeCheckbox, FieldTypeDate, FieldTypeSelect, FieldTypeMultiSelect,
	FieldTypeUser, FieldTypeContact, FieldTypeAddress, FieldTypeFile,
	FieldTypeFiles, FieldTypeResource,
}

// String returns the string representation of the field type.
func (t FieldType) String() string {
	return string(t)
}

// IsValid checks whether the field type is a known kind.
func (t FieldType) IsValid() bool {
	_, err := MatchKind[struct{}](t, validKinds{})
	return err == nil
}

// KindCases is implemented once per concern that branches on FieldType
// (input mapping, emptiness, equality, display, SQL projection). Adding a
// kind adds a method here, so every implementation stops compiling until
// it handles the new kind.
type KindCases[T any] interface {
	Text() T
	Textarea() T
	Number() T
	Money() T
	Checkbox() T
	Date() T
	Select() T
	MultiSelect() T
	User() T
	Contact() T
	Address() T
	File() T
	Files() T
	Resource() T
}

// MatchKind dispatches t to the matching method of c. It is the only
// switch over FieldType in the module.
func MatchKind[T any](t FieldType, c KindCases[T]) (T, error) {
	switch t {
	case FieldTypeText:
		return c.Text(), nil
	case FieldTypeTextarea:
		return c.Textarea(), nil
	case FieldTypeNumber:
		return c.Number(), nil
	case FieldTypeMoney:
		return c.Money(), nil
	case FieldTypeCheckbox:
		return c.Checkbox(), nil
	case FieldTypeDate:
		return c.Date(), nil
	case FieldTypeSelect:
		return c.Select(), nil
	case FieldTypeMultiSelect:
		return c.MultiSelect(), nil
	case FieldTypeUser:
		return c.User(), nil
	case FieldTypeContact:
		return c.Contact(), nil
	case FieldTypeAddress:
		return c.Address(), nil
	case FieldTypeFile:
		return c.File(), nil
	case FieldTypeFiles:
		return c.Files(), nil
	case FieldTypeResource:
		return c.Resource(), nil
	}
	var zero T
	return zero, fmt.Errorf("unknown field type %q", t)
}

type validKinds struct{}

func (validKinds) Text() struct{}        { return struct{}{} }
func (validKinds) Textarea() struct{}    { return struct{}{} }
func (validKinds) Number() struct{}      { return struct{}{} }
func (validKinds) Money() struct{}       { return struct{}{} }
func (validKinds) Checkbox() struct{}    { return struct{}{} }
func (validKinds) Date() struct{}        { return struct{}{} }
func (validKinds) Select() struct{}      { return struct{}{} }
func (validKinds) MultiSelect() struct{} { return struct{}{} }
func (validKinds) User() struct{}        { return struct{}{} }
func (validKinds) Contact() struct{}     { return struct{}{} }
func (validKinds) Address() struct{}     { return struct{}{} }
func (validKinds) File() struct{}        { return struct{}{} }
func (validKinds) Files() struct{}       { return struct{}{} }
func (validKinds) Resource() struct{}    { return struct{}{} }

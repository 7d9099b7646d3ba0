package model

// ResourceType is the record type of a Resource.
type ResourceType string

const (
	ResourceTypeBill     ResourceType = "Bill"
	ResourceTypeCustomer ResourceType = "Customer"
	ResourceTypeItem     ResourceType = "Item"
	ResourceTypeJob      ResourceType = "Job"
	ResourceTypeLine     ResourceType = "Line"
	ResourceTypePart     ResourceType = "Part"
	ResourceTypePurchase ResourceType = "Purchase"
	ResourceTypeStep     ResourceType = "Step"
	ResourceTypeVendor   ResourceType = "Vendor"
)

// ResourceTypes lists every record type.
var ResourceTypes = []ResourceType{
	ResourceTypeBill, ResourceTypeCustomer, ResourceTypeItem, ResourceTypeJob,
	ResourceTypeLine, ResourceTypePart, ResourceTypePurchase, ResourceTypeStep,
	ResourceTypeVendor,
}

// String returns the string representation of the resource type.
func (t ResourceType) String() string {
	return string(t)
}

// IsValid checks whether the resource type is a known value.
func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceTypeBill, ResourceTypeCustomer, ResourceTypeItem, ResourceTypeJob,
		ResourceTypeLine, ResourceTypePart, ResourceTypePurchase, ResourceTypeStep,
		ResourceTypeVendor:
		return true
	}
	return false
}

// HasLines reports whether Resources of this type own Line children.
func (t ResourceType) HasLines() bool {
	return t == ResourceTypePurchase || t == ResourceTypeBill
}

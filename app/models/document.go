package models

import "strings"

// Section names of an extracted invoice document
const (
	SectionDeliveryPoint  = "deliveryPoint"
	SectionCorrespondence = "correspondence"
	SectionCustomer       = "customer"
	SectionSupplier       = "supplier"
	SectionBilling        = "billing"
)

// Field names shared by every address set
const (
	FieldStreet      = "street"
	FieldBuilding    = "building"
	FieldUnit        = "unit"
	FieldPostalCode  = "postalCode"
	FieldCity        = "city"
	FieldAddressLine = "addressLine"
	FieldPostalCity  = "postalCity"
)

// Delivery point fields
const (
	FieldPPENumber   = "ppeNumber"
	FieldMeterNumber = "meterNumber"
	FieldTariffGroup = "tariffGroup"
	FieldOSDName     = "osdName"
	FieldOSDRegion   = "osdRegion"
)

// Person / company fields
const (
	FieldFirstName     = "firstName"
	FieldLastName      = "lastName"
	FieldFullName      = "fullName"
	FieldBusinessName  = "businessName"
	FieldTaxID         = "taxId"
	FieldSupplierName  = "supplierName"
	FieldSupplierTaxID = "supplierTaxId"
)

// Billing fields
const (
	FieldStartDate     = "startDate"
	FieldEndDate       = "endDate"
	FieldBillingPeriod = "billingPeriod"
	FieldUsage         = "usage"
	FieldTotalAmount   = "totalAmount"
	FieldInvoiceNumber = "invoiceNumber"
	FieldIssueDate     = "issueDate"
)

// Field types stored in metadata
const (
	FieldTypeIdentifier = "identifier"
	FieldTypeCode       = "code"
	FieldTypeName       = "name"
	FieldTypeStreet     = "street"
	FieldTypeNumber     = "number"
	FieldTypeCity       = "city"
	FieldTypeDate       = "date"
	FieldTypeAmount     = "amount"
	FieldTypeText       = "text"
)

// TransformationNone marks a field no rule has touched
const TransformationNone = "none"

// AddressSections are the sections carrying a full address set
var AddressSections = []string{SectionDeliveryPoint, SectionCustomer, SectionCorrespondence}

// FieldMetadata describes where a field value came from
type FieldMetadata struct {
	FieldType          string `json:"fieldType" bson:"field_type"`
	TransformationType string `json:"transformationType" bson:"transformation_type"`
	OriginalValue      string `json:"originalValue,omitempty" bson:"original_value,omitempty"`
	Source             string `json:"source,omitempty" bson:"source,omitempty"`
}

// Field is one extracted value. Empty Content means the value is absent.
type Field struct {
	Content    string        `json:"content" bson:"content"`
	Confidence float64       `json:"confidence" bson:"confidence"`
	Metadata   FieldMetadata `json:"metadata" bson:"metadata"`
}

// Section maps field name to field
type Section map[string]Field

// Document maps section name to section
type Document map[string]Section

// NewField creates a raw field as delivered by the OCR collaborator
func NewField(content string, confidence float64) Field {
	return Field{
		Content:    content,
		Confidence: ClampConfidence(confidence),
		Metadata:   FieldMetadata{TransformationType: TransformationNone},
	}
}

// IsEmpty reports whether the field carries no usable content
func (f Field) IsEmpty() bool {
	return strings.TrimSpace(f.Content) == ""
}

// Derive creates the replacement field produced by a transformation.
// The first recorded original value is kept.
func (f Field) Derive(content string, confidence float64, meta FieldMetadata) Field {
	original := f.Metadata.OriginalValue
	if original == "" {
		original = f.Content
	}
	if meta.FieldType == "" {
		meta.FieldType = f.Metadata.FieldType
	}
	if meta.Source == "" {
		meta.Source = f.Metadata.Source
	}
	meta.OriginalValue = original
	return Field{
		Content:    content,
		Confidence: ClampConfidence(confidence),
		Metadata:   meta,
	}
}

// Value returns the content of a field or "" if the field is missing
func (s Section) Value(name string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s[name].Content)
}

// Has reports whether the section holds a non-empty value under name
func (s Section) Has(name string) bool {
	return s.Value(name) != ""
}

// Clone returns a shallow copy; fields are values so this is a full copy
func (s Section) Clone() Section {
	out := make(Section, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Section returns the named section or nil
func (d Document) Section(name string) Section {
	if d == nil {
		return nil
	}
	return d[name]
}

// Clone copies every section of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v.Clone()
	}
	return out
}

// Flatten merges all sections into one field map. Earlier sections in
// order win over later ones for the same field name.
func (d Document) Flatten(order ...string) Section {
	if len(order) == 0 {
		order = []string{SectionDeliveryPoint, SectionCustomer, SectionCorrespondence, SectionSupplier, SectionBilling}
	}
	out := make(Section)
	for _, name := range order {
		for k, f := range d[name] {
			if f.IsEmpty() {
				continue
			}
			if _, ok := out[k]; !ok {
				out[k] = f
			}
		}
	}
	return out
}

// ClampConfidence keeps a confidence inside [0,1]
func ClampConfidence(c float64) float64 {
	if c != c || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

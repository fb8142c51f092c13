package dto

// Document is a Firestore document as returned by the REST API
type Document struct {
	Name       string           `json:"name,omitempty"`
	Fields     map[string]Value `json:"fields,omitempty"`
	CreateTime string           `json:"createTime,omitempty"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

// Value holds exactly one of its members. NullValue is set to the string
// "NULL_VALUE" on the wire, so a pointer tells absent from null.
type Value struct {
	NullValue      *string     `json:"nullValue,omitempty"`
	BooleanValue   *bool       `json:"booleanValue,omitempty"`
	IntegerValue   *string     `json:"integerValue,omitempty"`
	DoubleValue    *float64    `json:"doubleValue,omitempty"`
	TimestampValue *string     `json:"timestampValue,omitempty"`
	StringValue    *string     `json:"stringValue,omitempty"`
	BytesValue     *string     `json:"bytesValue,omitempty"`
	ReferenceValue *string     `json:"referenceValue,omitempty"`
	GeoPointValue  *LatLng     `json:"geoPointValue,omitempty"`
	ArrayValue     *ArrayValue `json:"arrayValue,omitempty"`
	MapValue       *MapValue   `json:"mapValue,omitempty"`
}

type ArrayValue struct {
	Values []Value `json:"values,omitempty"`
}

type MapValue struct {
	Fields map[string]Value `json:"fields,omitempty"`
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ListDocumentsResponse is one page of a collection listing
type ListDocumentsResponse struct {
	Documents     []Document `json:"documents,omitempty"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// FieldOperator is the comparison of a field filter
type FieldOperator string

const (
	OperatorUnspecified        FieldOperator = "OPERATOR_UNSPECIFIED"
	OperatorLessThan           FieldOperator = "LESS_THAN"
	OperatorLessThanOrEqual    FieldOperator = "LESS_THAN_OR_EQUAL"
	OperatorGreaterThan        FieldOperator = "GREATER_THAN"
	OperatorGreaterThanOrEqual FieldOperator = "GREATER_THAN_OR_EQUAL"
	OperatorEqual              FieldOperator = "EQUAL"
	OperatorNotEqual           FieldOperator = "NOT_EQUAL"
	OperatorArrayContains      FieldOperator = "ARRAY_CONTAINS"
	OperatorIn                 FieldOperator = "IN"
	OperatorArrayContainsAny   FieldOperator = "ARRAY_CONTAINS_ANY"
	OperatorNotIn              FieldOperator = "NOT_IN"
)

type FieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type FieldFilter struct {
	Field FieldReference `json:"field"`
	Op    FieldOperator  `json:"op"`
	Value Value          `json:"value"`
}

type Filter struct {
	FieldFilter *FieldFilter `json:"fieldFilter,omitempty"`
}

type CollectionSelector struct {
	CollectionID   string `json:"collectionId"`
	AllDescendants bool   `json:"allDescendants,omitempty"`
}

type StructuredQuery struct {
	From  []CollectionSelector `json:"from"`
	Where *Filter              `json:"where,omitempty"`
	Limit *int                 `json:"limit,omitempty"`
}

type RunQueryRequest struct {
	StructuredQuery StructuredQuery `json:"structuredQuery"`
}

// RunQueryResponse is one element of the runQuery reply array. Progress
// entries carry only ReadTime.
type RunQueryResponse struct {
	Document       *Document `json:"document,omitempty"`
	ReadTime       string    `json:"readTime,omitempty"`
	SkippedResults int       `json:"skippedResults,omitempty"`
}

package documents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jrsteele09/firestore-auth/dto"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
)

const nullValue = "NULL_VALUE"

// DocumentToPOD decodes the fields of doc into out, which must be a pointer.
// Fields are flattened to plain JSON first, so out uses ordinary json tags.
func DocumentToPOD(doc dto.Document, out interface{}) error {
	plain := make(map[string]interface{}, len(doc.Fields))
	for k, v := range doc.Fields {
		plain[k] = ValueToInterface(v)
	}

	data, err := json.Marshal(plain)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", fberrors.ErrDeserialize, doc.Name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", fberrors.ErrDeserialize, doc.Name, err)
	}
	return nil
}

// Decode is DocumentToPOD for a concrete type
func Decode[T any](doc dto.Document) (*T, error) {
	var v T
	if err := DocumentToPOD(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// PODToDocument encodes v, which must serialize to a JSON object, into a
// document with typed fields.
func PODToDocument(v interface{}) (dto.Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return dto.Document{}, fberrors.Wrapf(err, "failed to encode document")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var plain interface{}
	if err := dec.Decode(&plain); err != nil {
		return dto.Document{}, fberrors.Wrapf(err, "failed to encode document")
	}

	obj, ok := plain.(map[string]interface{})
	if !ok {
		return dto.Document{}, fmt.Errorf("document must encode to a JSON object, got %T", plain)
	}

	fields := make(map[string]dto.Value, len(obj))
	for k, fv := range obj {
		fields[k] = InterfaceToValue(fv)
	}
	return dto.Document{Fields: fields}, nil
}

// ValueToInterface flattens a typed Firestore value into plain JSON data.
// Integers become int64, timestamps their RFC 3339 string.
func ValueToInterface(v dto.Value) interface{} {
	switch {
	case v.TimestampValue != nil:
		return *v.TimestampValue
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		if err != nil {
			return *v.IntegerValue
		}
		return n
	case v.DoubleValue != nil:
		return *v.DoubleValue
	case v.MapValue != nil:
		m := make(map[string]interface{}, len(v.MapValue.Fields))
		for k, fv := range v.MapValue.Fields {
			m[k] = ValueToInterface(fv)
		}
		return m
	case v.StringValue != nil:
		return *v.StringValue
	case v.BooleanValue != nil:
		return *v.BooleanValue
	case v.ArrayValue != nil:
		arr := make([]interface{}, 0, len(v.ArrayValue.Values))
		for _, av := range v.ArrayValue.Values {
			arr = append(arr, ValueToInterface(av))
		}
		return arr
	case v.ReferenceValue != nil:
		return *v.ReferenceValue
	case v.BytesValue != nil:
		return *v.BytesValue
	case v.GeoPointValue != nil:
		return map[string]interface{}{
			"latitude":  v.GeoPointValue.Latitude,
			"longitude": v.GeoPointValue.Longitude,
		}
	}
	return nil
}

// InterfaceToValue is the inverse of ValueToInterface for data decoded with
// json.Decoder.UseNumber. Plain Go ints and floats are accepted too.
func InterfaceToValue(v interface{}) dto.Value {
	switch t := v.(type) {
	case nil:
		null := nullValue
		return dto.Value{NullValue: &null}
	case json.Number:
		s := t.String()
		if !strings.ContainsAny(s, ".eE") {
			if _, err := strconv.ParseInt(s, 10, 64); err == nil {
				return dto.Value{IntegerValue: &s}
			}
		}
		f, _ := t.Float64()
		return dto.Value{DoubleValue: &f}
	case int:
		s := strconv.Itoa(t)
		return dto.Value{IntegerValue: &s}
	case int64:
		s := strconv.FormatInt(t, 10)
		return dto.Value{IntegerValue: &s}
	case float64:
		return dto.Value{DoubleValue: &t}
	case string:
		return dto.Value{StringValue: &t}
	case bool:
		return dto.Value{BooleanValue: &t}
	case map[string]interface{}:
		fields := make(map[string]dto.Value, len(t))
		for k, fv := range t {
			fields[k] = InterfaceToValue(fv)
		}
		return dto.Value{MapValue: &dto.MapValue{Fields: fields}}
	case []interface{}:
		values := make([]dto.Value, 0, len(t))
		for _, av := range t {
			values = append(values, InterfaceToValue(av))
		}
		return dto.Value{ArrayValue: &dto.ArrayValue{Values: values}}
	}

	// Anything else goes through JSON once more to reach one of the cases above
	data, err := json.Marshal(v)
	if err != nil {
		null := nullValue
		return dto.Value{NullValue: &null}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var plain interface{}
	if err := dec.Decode(&plain); err != nil {
		null := nullValue
		return dto.Value{NullValue: &null}
	}
	return InterfaceToValue(plain)
}

package opcua

import (
	"fmt"
	"github.com/gopcua/opcua/ua"
	"strconv"
	"taglogger/pkg/runtime"
	"time"
)

func typeName(t runtime.DataType) string {
	return runtime.DataTypeToString[t]
}

// toValue converts a data value reported by the server.
func toValue(dv *ua.DataValue) runtime.Value {
	if dv == nil {
		return runtime.NullValue(typeName(runtime.UNKNOWN))
	}
	if dv.Status != ua.StatusOK {
		return runtime.ErrorValue(typeName(variantType(dv.Value)), dv.Status.Error())
	}
	if dv.Value == nil || dv.Value.Value() == nil {
		return runtime.NullValue(typeName(runtime.UNKNOWN))
	}

	switch v := dv.Value.Value().(type) {
	case bool:
		return runtime.TextValue(typeName(runtime.BOOL), strconv.FormatBool(v))
	case int8:
		return runtime.NumberValue(typeName(runtime.INT16), float64(v), strconv.FormatInt(int64(v), 10))
	case uint8:
		return runtime.NumberValue(typeName(runtime.UINT16), float64(v), strconv.FormatUint(uint64(v), 10))
	case int16:
		return runtime.NumberValue(typeName(runtime.INT16), float64(v), strconv.FormatInt(int64(v), 10))
	case uint16:
		return runtime.NumberValue(typeName(runtime.UINT16), float64(v), strconv.FormatUint(uint64(v), 10))
	case int32:
		return runtime.NumberValue(typeName(runtime.INT32), float64(v), strconv.FormatInt(int64(v), 10))
	case uint32:
		return runtime.NumberValue(typeName(runtime.UINT32), float64(v), strconv.FormatUint(uint64(v), 10))
	case int64:
		return runtime.NumberValue(typeName(runtime.INT64), float64(v), strconv.FormatInt(v, 10))
	case uint64:
		return runtime.NumberValue(typeName(runtime.UINT64), float64(v), strconv.FormatUint(v, 10))
	case float32:
		return runtime.NumberValue(typeName(runtime.SINGLE), float64(v), strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64:
		return runtime.NumberValue(typeName(runtime.DOUBLE), v, strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		return runtime.TextValue(typeName(runtime.STRING), v)
	case time.Time:
		return runtime.TextValue(typeName(runtime.DATETIME), v.Format(time.RFC3339Nano))
	case *ua.LocalizedText:
		if v == nil {
			return runtime.NullValue(typeName(runtime.STRING))
		}
		return runtime.TextValue(typeName(runtime.STRING), v.Text)
	default:
		return runtime.TextValue(typeName(runtime.UNKNOWN), fmt.Sprint(v))
	}
}

func variantType(v *ua.Variant) runtime.DataType {
	if v == nil {
		return runtime.UNKNOWN
	}
	switch v.Type() {
	case ua.TypeIDBoolean:
		return runtime.BOOL
	case ua.TypeIDSByte, ua.TypeIDInt16:
		return runtime.INT16
	case ua.TypeIDByte, ua.TypeIDUint16:
		return runtime.UINT16
	case ua.TypeIDInt32:
		return runtime.INT32
	case ua.TypeIDUint32:
		return runtime.UINT32
	case ua.TypeIDInt64:
		return runtime.INT64
	case ua.TypeIDUint64:
		return runtime.UINT64
	case ua.TypeIDFloat:
		return runtime.SINGLE
	case ua.TypeIDDouble:
		return runtime.DOUBLE
	case ua.TypeIDString, ua.TypeIDLocalizedText:
		return runtime.STRING
	case ua.TypeIDDateTime:
		return runtime.DATETIME
	}
	return runtime.UNKNOWN
}

package runtime

type DataType int8

const (
	BOOL DataType = iota
	INT16
	UINT16
	INT32
	UINT32
	INT64
	UINT64
	SINGLE
	DOUBLE
	STRING
	DATETIME
	UNKNOWN
)

var DataTypeToString = map[DataType]string{
	BOOL:     "BOOL",
	INT16:    "INT16",
	UINT16:   "UINT16",
	INT32:    "INT32",
	UINT32:   "UINT32",
	INT64:    "INT64",
	UINT64:   "UINT64",
	SINGLE:   "SINGLE",
	DOUBLE:   "DOUBLE",
	STRING:   "STRING",
	DATETIME: "DATETIME",
	UNKNOWN:  "UNKNOWN",
}

var StringToDataType = map[string]DataType{
	"BOOL":     BOOL,
	"INT16":    INT16,
	"UINT16":   UINT16,
	"INT32":    INT32,
	"UINT32":   UINT32,
	"INT64":    INT64,
	"UINT64":   UINT64,
	"SINGLE":   SINGLE,
	"DOUBLE":   DOUBLE,
	"STRING":   STRING,
	"DATETIME": DATETIME,
	"UNKNOWN":  UNKNOWN,
}

func (t DataType) String() string {
	if s, ok := DataTypeToString[t]; ok {
		return s
	}
	return DataTypeToString[UNKNOWN]
}

func (t DataType) Numeric() bool {
	switch t {
	case INT16, UINT16, INT32, UINT32, INT64, UINT64, SINGLE, DOUBLE:
		return true
	}
	return false
}

package appwrite

import (
	"github.com/segmentio/encoding/json"
)

type query struct {
	Method    string        `json:"method"`
	Attribute string        `json:"attribute,omitempty"`
	Values    []interface{} `json:"values,omitempty"`
}

func (q query) String() string {
	b, err := json.Marshal(q)
	if err != nil {
		// values are always plain scalars
		panic(err)
	}

	return string(b)
}

// Limit caps the number of rows returned by a list call.
func Limit(n int) string {
	return query{Method: "limit", Values: []interface{}{n}}.String()
}

// CursorAfter pages after the row with the given id.
func CursorAfter(rowID string) string {
	return query{Method: "cursorAfter", Values: []interface{}{rowID}}.String()
}

// Offset skips the first n items. Used where items have no $id to page after.
func Offset(n int) string {
	return query{Method: "offset", Values: []interface{}{n}}.String()
}

// Equal matches rows whose column equals one of values.
func Equal(column string, values ...interface{}) string {
	return query{Method: "equal", Attribute: column, Values: values}.String()
}

func OrderAsc(column string) string {
	return query{Method: "orderAsc", Attribute: column}.String()
}

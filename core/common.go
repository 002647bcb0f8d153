package core

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Operation represents a generated endpoint's storage operation.
type Operation string

// all supported operations
const (
	OperationCreate  Operation = "create"
	OperationList    Operation = "list"
	OperationPatch   Operation = "patch"
	OperationClear   Operation = "clear"
	OperationRead    Operation = "read"
	OperationReplace Operation = "replace"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationRelate  Operation = "relate"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationList, OperationPatch, OperationClear,
		OperationRead, OperationReplace, OperationUpdate, OperationDelete,
		OperationRelate:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to create idiomatic REST routes
func Plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	if strings.HasSuffix(singular, "child") {
		return strings.TrimSuffix(singular, "child") + "children"
	}
	return singular + "s"
}

// AppendS is the default pluralizer for route names. It simply appends
// an "s". Use Plural for idiomatic English plurals.
func AppendS(singular string) string {
	return singular + "s"
}

// CamelCase converts a snake_case table name into its camelCase route
// representation. Example: "user_account" becomes "userAccount".
func CamelCase(snake string) string {
	parts := strings.Split(snake, "_")
	for i := 1; i < len(parts); i++ {
		s := parts[i]
		if len(s) == 0 {
			continue
		}
		runes := []rune(s)
		r := runes[0]
		if 'a' <= r && r <= 'z' {
			r += 'A' - 'a'
			runes[0] = r
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, "")
}

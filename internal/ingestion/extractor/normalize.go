package extractor

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

// jsonCell scans a nullable JSON or JSONB column through datatypes.JSON.
type jsonCell struct {
	JSON  datatypes.JSON
	Valid bool
}

func (c *jsonCell) Scan(v any) error {
	if v == nil {
		c.JSON, c.Valid = nil, false
		return nil
	}
	if err := c.JSON.Scan(v); err != nil {
		return err
	}
	c.Valid = true
	return nil
}

// value decodes the document. Unparseable documents fall back to their text.
func (c *jsonCell) value() any {
	if !c.Valid {
		return nil
	}
	if decoded, ok := decodeJSON(c.JSON); ok {
		return decoded
	}
	return sanitizeUTF8(c.JSON.String())
}

// normalizeValue turns driver values into plain Go values: text as string,
// timestamps in UTC.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *jsonCell:
		return t.value()
	case []byte:
		return sanitizeUTF8(string(t))
	case string:
		return sanitizeUTF8(t)
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}

func isJSONType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "JSON", "JSONB":
		return true
	}
	return false
}

func decodeJSON(j datatypes.JSON) (any, bool) {
	if len(j) == 0 {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(j, &out); err != nil {
		return nil, false
	}
	return out, true
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, " ")
}

package account

import (
	"bytes"
	"encoding/json"
)

// NullableString round-trips JSON null as the empty string. Account stores
// written by other tools use null for cleared fields like invalidReason.
type NullableString string

func (s *NullableString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*s = ""
		return nil
	}
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = NullableString(v)
	return nil
}

func (s NullableString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

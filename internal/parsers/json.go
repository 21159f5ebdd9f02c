package parsers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ledger-reconciler/internal/models"
)

// DecodeMerchantRecords decodes and validates merchant records sent as JSON.
// Each element is decoded on its own, so one bad record becomes a RowError
// and the rest of the batch is still returned.
func DecodeMerchantRecords(raw []json.RawMessage) *ValidationResult[models.MerchantTransaction] {
	return decodeRecords(raw, func(t *models.MerchantTransaction) error { return t.Validate() })
}

// DecodeBankRecords decodes and validates bank records sent as JSON
func DecodeBankRecords(raw []json.RawMessage) *ValidationResult[models.BankTransaction] {
	return decodeRecords(raw, func(t *models.BankTransaction) error { return t.Validate() })
}

func decodeRecords[T any](raw []json.RawMessage, validate func(*T) error) *ValidationResult[T] {
	result := &ValidationResult[T]{Valid: []T{}, Invalid: []RowError{}}

	for i, element := range raw {
		row := i + 1
		fields, ok := jsonRaw(element)
		if !ok {
			result.Invalid = append(result.Invalid, RowError{
				Row:    row,
				Reason: "record is not a JSON object",
				Raw:    map[string]string{},
			})
			continue
		}

		var record T
		if err := json.Unmarshal(element, &record); err != nil {
			result.Invalid = append(result.Invalid, RowError{Row: row, Reason: decodeReason(err), Raw: fields})
			continue
		}
		if err := validate(&record); err != nil {
			result.Invalid = append(result.Invalid, RowError{Row: row, Reason: err.Error(), Raw: fields})
			continue
		}
		result.Valid = append(result.Valid, record)
	}

	return result
}

// jsonRaw flattens a JSON object into the string map carried by RowError
func jsonRaw(element json.RawMessage) (map[string]string, bool) {
	dec := json.NewDecoder(bytes.NewReader(element))
	dec.UseNumber()

	var object map[string]interface{}
	if err := dec.Decode(&object); err != nil || object == nil {
		return nil, false
	}

	fields := make(map[string]string, len(object))
	for key, value := range object {
		switch v := value.(type) {
		case nil:
			fields[key] = ""
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		default:
			encoded, _ := json.Marshal(v)
			fields[key] = string(encoded)
		}
	}
	return fields, true
}

func decodeReason(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("invalid %s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return strings.TrimPrefix(err.Error(), "json: ")
}

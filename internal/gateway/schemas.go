package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/medrex/rxledger/pkg/types"
)

const maxBodyBytes = 64 << 10

const identityProp = `{"type": "string", "minLength": 1, "maxLength": 256}`

// maxDurationSeconds is the longest span a time.Duration can hold
const maxDurationSeconds = math.MaxInt64 / int64(time.Second)

var maxDurationProp = strconv.FormatInt(maxDurationSeconds, 10)

var (
	registerDoctorSchema = mustSchema(`{
		"type": "object",
		"required": ["identity", "license_content_id", "license_expiry", "name", "specialization"],
		"properties": {
			"identity": ` + identityProp + `,
			"license_content_id": {"type": "string", "minLength": 1},
			"license_expiry": {"type": "string", "format": "date-time"},
			"name": {"type": "string", "minLength": 1},
			"specialization": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`)

	registerPharmacistSchema = mustSchema(`{
		"type": "object",
		"required": ["identity", "pharmacy_id", "pharmacy_name"],
		"properties": {
			"identity": ` + identityProp + `,
			"pharmacy_id": {"type": "string", "minLength": 1},
			"pharmacy_name": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`)

	patientProfileSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"profile_content_id": {"type": "string"}
		},
		"additionalProperties": false
	}`)

	identitySchema = mustSchema(`{
		"type": "object",
		"required": ["identity"],
		"properties": {
			"identity": ` + identityProp + `
		},
		"additionalProperties": false
	}`)

	grantAccessSchema = mustSchema(`{
		"type": "object",
		"required": ["doctor", "data_fields"],
		"properties": {
			"doctor": ` + identityProp + `,
			"data_fields": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
			"duration_seconds": {"type": "integer", "minimum": 0, "maximum": ` + maxDurationProp + `}
		},
		"additionalProperties": false
	}`)

	extendAccessSchema = mustSchema(`{
		"type": "object",
		"required": ["additional_seconds"],
		"properties": {
			"additional_seconds": {"type": "integer", "minimum": 1, "maximum": ` + maxDurationProp + `}
		},
		"additionalProperties": false
	}`)

	createPrescriptionSchema = mustSchema(`{
		"type": "object",
		"required": ["patient", "expiry_date", "content_ref"],
		"properties": {
			"patient": ` + identityProp + `,
			"expiry_date": {"type": "string", "format": "date-time"},
			"content_ref": {"type": "string", "minLength": 1}
		},
		"additionalProperties": false
	}`)

	transferTokenSchema = mustSchema(`{
		"type": "object",
		"required": ["to"],
		"properties": {
			"to": ` + identityProp + `
		}
	}`)

	baseURISchema = mustSchema(`{
		"type": "object",
		"required": ["base_uri"],
		"properties": {
			"base_uri": {"type": "string"}
		},
		"additionalProperties": false
	}`)

	togglePauseSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"duration_hours": {"type": "integer"}
		},
		"additionalProperties": false
	}`)
)

func mustSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid request schema: %v", err))
	}
	return schema
}

// decodeBody reads the request body, validates it against schema and
// decodes it into dst. Failures are InvalidInput ledger errors.
func decodeBody(r *http.Request, schema *gojsonschema.Schema, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "failed to read request body", nil)
	}
	if len(body) > maxBodyBytes {
		return types.NewValidationError(types.ErrCodeInvalidInput, "request body too large", nil)
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "request body is not valid JSON", nil)
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			violations = append(violations, e.String())
		}
		return types.NewValidationError(types.ErrCodeInvalidInput, "request body failed validation", map[string]interface{}{
			"violations": violations,
		})
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "request body could not be decoded", nil)
	}
	return nil
}

// secondsToDuration converts a whole number of seconds, rejecting values a
// time.Duration cannot represent
func secondsToDuration(field string, seconds int64) (time.Duration, error) {
	if seconds < 0 || seconds > maxDurationSeconds {
		return 0, types.NewValidationError(types.ErrCodeInvalidInput, "duration out of range", map[string]interface{}{
			"field":       field,
			"max_seconds": maxDurationSeconds,
		})
	}
	return time.Duration(seconds) * time.Second, nil
}

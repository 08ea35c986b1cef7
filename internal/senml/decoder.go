package senml

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
)

// Decoder turns raw payloads into validated packs.
type Decoder struct {
	schema     *Schema
	namePrefix string
}

func NewDecoder(schema *Schema, namePrefix string) *Decoder {
	return &Decoder{
		schema:     schema,
		namePrefix: namePrefix,
	}
}

// Decode parses payload, checks it against the schema and verifies that the
// base name uses the supported naming scheme. Failures are reported as
// BAD_PAYLOAD, SCHEMA_VIOLATION or UNKNOWN_NAMING_SCHEME errors.
func (d *Decoder) Decode(payload []byte) (*Pack, error) {
	var document interface{}
	if err := json.Unmarshal(payload, &document); err != nil {
		return nil, errors.ErrBadPayload.
			WithCause(err).
			WithDetail(errors.CauseKey, err.Error())
	}

	violations, err := d.schema.Validate(payload)
	if err != nil {
		return nil, errors.ErrBadPayload.
			WithCause(err).
			WithDetail(errors.CauseKey, err.Error())
	}
	if len(violations) > 0 {
		return nil, errors.ErrSchemaViolation.
			WithDetail(errors.CauseKey, strings.Join(violations, "; ")).
			WithDetail("violations", violations)
	}

	var pack Pack
	if err := json.Unmarshal(payload, &pack); err != nil {
		return nil, errors.ErrSchemaViolation.
			WithCause(err).
			WithDetail(errors.CauseKey, err.Error())
	}

	if !strings.HasPrefix(pack.BaseName, d.namePrefix) {
		return nil, errors.ErrUnknownNamingScheme.
			WithDetail(errors.CauseKey, fmt.Sprintf("base name %q does not start with %q", pack.BaseName, d.namePrefix)).
			WithDetail("base_name", pack.BaseName)
	}

	return &pack, nil
}


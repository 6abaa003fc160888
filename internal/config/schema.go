package config

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/tendersight/vaultops/internal/errors"
)

// vaultopsSchema is the JSON schema the decoded vaultops.yaml document is
// checked against before the typed structures ever see it. Unknown top-level
// keys are rejected so misspelled sections fail loudly instead of being
// silently ignored.
const vaultopsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "enum": [1]},
    "store": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "address": {"type": "string"},
        "token": {"type": "string"},
        "tls_skip": {"type": "boolean"},
        "command": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "ready_attempts": {"type": "integer", "minimum": 1},
        "ready_interval_seconds": {"type": "integer", "minimum": 1}
      }
    },
    "keys": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "backend": {"type": "string", "enum": ["file", "keyring"]},
        "dir": {"type": "string"},
        "keyring_service": {"type": "string"}
      }
    },
    "rotation": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "output": {"type": "string"},
        "secret_id_ttl": {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))+$"},
        "secret_id_uses": {"type": "integer", "minimum": 0},
        "ledger_dir": {"type": "string"},
        "shared_secret": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "path": {"type": "string"},
            "key": {"type": "string"}
          }
        },
        "services": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["name", "policy"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "role": {"type": "string"},
              "policy": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    },
    "metrics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "path": {"type": "string"}
      }
    },
    "database": {
      "type": "object",
      "additionalProperties": false,
      "required": ["driver", "dsn"],
      "properties": {
        "driver": {"type": "string", "enum": ["postgres", "mysql"]},
        "dsn": {"type": "string", "minLength": 1}
      }
    }
  }
}`

// validateSchema checks the raw decoded document against vaultopsSchema.
func validateSchema(doc interface{}) error {
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return dserrors.ConfigError{
			Message:    "configuration cannot be validated",
			Suggestion: "Check for YAML constructs that do not map to JSON, such as non-string keys",
		}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(vaultopsSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return dserrors.UserError{
			Message:    "Schema validation error",
			Details:    err.Error(),
			Suggestion: "This is an internal error. Please report it",
			Err:        err,
		}
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return dserrors.ConfigError{
			Message:    "configuration does not match the expected format:\n  - " + strings.Join(problems, "\n  - "),
			Suggestion: "Fix the listed fields in vaultops.yaml",
		}
	}

	return nil
}

// Copyright 2026 The KMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical renders structured data as deterministic JSON text
// for use as HMAC input. Both sides of the provisioning handshake must
// compute identical bytes, so the rendering is fully specified:
// primitives use their natural JSON text, arrays are comma-joined in
// order, object keys are sorted lexicographically, and there is no
// whitespace anywhere. Any deviation — a reordered key, a stray
// space — invalidates every request.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Stringify returns the canonical JSON text of v. v may be any value
// encodable by encoding/json; it is first normalized through a JSON
// round-trip (preserving exact number text via json.Number) and then
// rendered deterministically.
func Stringify(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical: encoding value: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.UseNumber()
	var normalized any
	if err := decoder.Decode(&normalized); err != nil {
		return "", fmt.Errorf("canonical: normalizing value: %w", err)
	}

	var out strings.Builder
	if err := render(&out, normalized); err != nil {
		return "", err
	}
	return out.String(), nil
}

func render(out *strings.Builder, v any) error {
	switch value := v.(type) {
	case nil:
		out.WriteString("null")
	case bool:
		if value {
			out.WriteString("true")
		} else {
			out.WriteString("false")
		}
	case json.Number:
		out.WriteString(value.String())
	case string:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("canonical: encoding string: %w", err)
		}
		out.Write(encoded)
	case []any:
		out.WriteByte('[')
		for index, element := range value {
			if index > 0 {
				out.WriteByte(',')
			}
			if err := render(out, element); err != nil {
				return err
			}
		}
		out.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		out.WriteByte('{')
		for index, key := range keys {
			if index > 0 {
				out.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return fmt.Errorf("canonical: encoding key: %w", err)
			}
			out.Write(encodedKey)
			out.WriteByte(':')
			if err := render(out, value[key]); err != nil {
				return err
			}
		}
		out.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
	return nil
}

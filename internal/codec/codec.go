// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package codec provides hex, base58, and base64 encode/decode with
// strict validation for the wire fields the signer core exchanges.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

// Encoding identifies one of the supported byte encodings.
type Encoding string

const (
	Hex    Encoding = "hex"
	Base58 Encoding = "base58"
	Base64 Encoding = "base64"
)

// base64FieldPattern matches standard padded base64, used by the Request
// Executor to validate wire fields before handing them to Decode.
var base64FieldPattern = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*(([A-Za-z0-9+/]{2}==)|([A-Za-z0-9+/]{3}=)|([A-Za-z0-9+/]{4}))?$`)

// IsValidBase64Field reports whether s is structurally valid standard
// base64 (the predicate the Request Executor uses to pre-validate an
// encrypted envelope's fields before calling Decode).
func IsValidBase64Field(s string) bool {
	if s == "" {
		return true
	}
	return base64FieldPattern.MatchString(s)
}

// Encode renders b using the requested encoding.
func Encode(b []byte, enc Encoding) (string, error) {
	switch enc {
	case Hex:
		return hex.EncodeToString(b), nil
	case Base58:
		return base58.Encode(b), nil
	case Base64:
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return "", fmt.Errorf("codec: unsupported encoding %q", enc)
	}
}

// Decode parses s as the requested encoding back to bytes.
func Decode(s string, enc Encoding) ([]byte, error) {
	switch enc {
	case Hex:
		return decodeHex(s)
	case Base58:
		return decodeBase58(s)
	case Base64:
		return decodeBase64(s)
	default:
		return nil, fmt.Errorf("codec: unsupported encoding %q", enc)
	}
}

// decodeHex strips an optional 0x prefix, zero-pads an odd-length string,
// and otherwise only fails on non-hex characters.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid hex string: %w", err)
	}
	return b, nil
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func decodeBase58(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return nil, fmt.Errorf("codec: invalid base58 character %q", r)
		}
	}
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid base58 string: %w", err)
	}
	return b, nil
}

func decodeBase64(s string) ([]byte, error) {
	if !IsValidBase64Field(s) {
		return nil, fmt.Errorf("codec: invalid base64 string %q", s)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid base64 string: %w", err)
	}
	return b, nil
}

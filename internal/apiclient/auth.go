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

package apiclient

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crossmint/signer-frames/internal/config"
	"github.com/crossmint/signer-frames/internal/signererrors"
)

// Origin distinguishes a server-issued API key ("sk" prefix) from a
// client-issued one ("ck" prefix).
type Origin string

const (
	OriginServer Origin = "server"
	OriginClient Origin = "client"
)

// AuthData is the per-call credential pair the request executor
// attaches as Authorization/x-api-key headers.
type AuthData struct {
	APIKey string
	JWT    string
	Origin Origin
}

// ParsedAPIKey is the result of parsing an API key of the form
// {sk|ck}_{environment}_{rest}.
type ParsedAPIKey struct {
	Origin      Origin
	Environment config.Environment
}

// ParseAPIKey parses apiKey into its origin and environment, e.g.
// "sk_development_abc" -> {origin: server, environment: development}.
// An unknown prefix or environment fails InvalidApiKey.
func ParseAPIKey(apiKey string) (ParsedAPIKey, error) {
	parts := strings.SplitN(apiKey, "_", 3)
	if len(parts) != 3 {
		return ParsedAPIKey{}, signererrors.New(signererrors.KindInvalidAPIKey, "api key must be of the form {sk|ck}_{environment}_{rest}")
	}

	var origin Origin
	switch parts[0] {
	case "sk":
		origin = OriginServer
	case "ck":
		origin = OriginClient
	default:
		return ParsedAPIKey{}, signererrors.New(signererrors.KindInvalidAPIKey, "api key prefix must be sk or ck")
	}

	env := config.Environment(parts[1])
	if _, err := config.BaseURL(env); err != nil {
		return ParsedAPIKey{}, signererrors.Wrap(signererrors.KindInvalidAPIKey, "api key environment is unknown", err)
	}
	return ParsedAPIKey{Origin: origin, Environment: env}, nil
}

// ParseEnvironment extracts just the environment from an API key of
// the form {sk|ck}_{environment}_{rest}. An unknown prefix or
// environment fails InvalidApiKey.
func ParseEnvironment(apiKey string) (config.Environment, error) {
	parsed, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}
	return parsed.Environment, nil
}

// NewAuthData validates apiKey's shape and bearerJWT's structural
// well-formedness (three dot-separated, base64url-decodable segments)
// without verifying its signature. The core accepts bearer tokens
// opaquely and never establishes user identity itself.
func NewAuthData(apiKey, bearerJWT string) (*AuthData, error) {
	parsed, err := ParseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(bearerJWT, jwt.MapClaims{}); err != nil {
		return nil, signererrors.Wrap(signererrors.KindInvalidAPIKey, "bearer token is not a structurally valid JWT", err)
	}
	return &AuthData{APIKey: apiKey, JWT: bearerJWT, Origin: parsed.Origin}, nil
}

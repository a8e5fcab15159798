// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package cryptoprim collects the core's raw cryptographic primitives:
// SHA-2 digests, ECDH shared-secret derivation, raw AES-256-GCM, and
// FF1 format-preserving encryption. Higher-level services
// (internal/hpkechannel, internal/fpe, internal/userkey) compose these
// rather than calling crypto/* directly.
package cryptoprim

import (
	"crypto/sha256"
	"crypto/sha512"
)

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) [32]byte { return sha256.Sum256(data) }

// SHA384 returns the SHA-384 digest of data.
func SHA384(data []byte) [48]byte { return sha512.Sum384(data) }

// SHA512 returns the SHA-512 digest of data.
func SHA512(data []byte) [64]byte { return sha512.Sum512(data) }

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

package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Symmetric key derivation labels. The raw ECDH shared secret is never
// used directly as key material; it is always run through HKDF-SHA256
// with a label fixed to the purpose so the unwrap key and the FF1 tweak
// key can never collide.
const (
	masterSecretKeyInfo = "signer-frames/master-secret-unwrap-key/v1"
	ff1TweakKeyInfo     = "signer-frames/ff1-tweak-key/v1"
)

// DeriveAESKey computes the single-purpose AES-256-GCM key used to
// unwrap the user's encrypted master secret: ECDH(priv, pub) run
// through HKDF-SHA256(salt=nil, info=masterSecretKeyInfo) to 32 bytes.
func DeriveAESKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	return deriveHKDFKey(priv, pub, masterSecretKeyInfo, 32)
}

// DeriveFF1TweakKey computes the key the FPE service mixes into its FF1
// tweak, derived from the same ECDH shared secret under a distinct
// label so it is never equal to the AES unwrap key.
func DeriveFF1TweakKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	return deriveHKDFKey(priv, pub, ff1TweakKeyInfo, 32)
}

func deriveHKDFKey(priv *ecdh.PrivateKey, pub *ecdh.PublicKey, info string, size int) ([]byte, error) {
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ecdh: %w", err)
	}
	r := hkdf.New(sha256.New, shared, nil, []byte(info))
	key := make([]byte, size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cryptoprim: hkdf expand: %w", err)
	}
	return key, nil
}

// AESGCMEncrypt seals plaintext under key, returning IV(12) ||
// ciphertext || TAG(16), the layout encryptedUserKey.bytes travels in.
func AESGCMEncrypt(key, iv, plaintext, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("cryptoprim: iv must be %d bytes, got %d", gcm.NonceSize(), len(iv))
	}
	sealed := gcm.Seal(nil, iv, plaintext, additionalData)
	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// AESGCMDecrypt opens a blob laid out as IV(12) || ciphertext || TAG(16)
// under key.
func AESGCMDecrypt(key, blob, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, fmt.Errorf("cryptoprim: ciphertext shorter than nonce")
	}
	iv := blob[:gcm.NonceSize()]
	ciphertext := blob[gcm.NonceSize():]
	return gcm.Open(nil, iv, ciphertext, additionalData)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: aes key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: gcm: %w", err)
	}
	return gcm, nil
}

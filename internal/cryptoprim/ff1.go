package cryptoprim

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"math/big"
)

// FF1 implements NIST SP 800-38G's FF1 format-preserving encryption
// mode over fixed-radix digit strings, built directly on an AES block
// cipher per the published algorithm.
//
// A "digit string" here is a []byte whose entries are digit VALUES
// (0..radix-1), not ASCII codepoints: the representation the FPE
// Service already works with after splitting a numeric code apart.
type FF1 struct {
	block cipher.Block
	tweak []byte
	radix int
}

const (
	ff1MinLen = 2
	ff1Rounds = 10
)

// NewFF1 constructs an FF1 instance for the given radix (10 for decimal
// OTP codes) under key, with a fixed tweak mixed into every operation.
// key must be a valid AES key (16/24/32 bytes); the derived AES-256-GCM
// key from DeriveAESKey doubles as the FF1 key.
func NewFF1(key, tweak []byte, radix int) (*FF1, error) {
	if radix < 2 || radix > 65536 {
		return nil, fmt.Errorf("cryptoprim: ff1: unsupported radix %d", radix)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ff1: %w", err)
	}
	return &FF1{block: block, tweak: tweak, radix: radix}, nil
}

// Encrypt maps a digit string to a same-length digit string. Every
// digit must be strictly less than the configured radix, and len(x)
// must be at least 2 (NIST SP 800-38G's minimum domain size).
func (f *FF1) Encrypt(x []byte) ([]byte, error) {
	return f.transform(x, true)
}

// Decrypt is the inverse of Encrypt.
func (f *FF1) Decrypt(x []byte) ([]byte, error) {
	return f.transform(x, false)
}

func (f *FF1) transform(x []byte, encrypting bool) ([]byte, error) {
	n := len(x)
	if n < ff1MinLen {
		return nil, fmt.Errorf("cryptoprim: ff1: input too short, need >= %d digits", ff1MinLen)
	}
	for _, d := range x {
		if int(d) >= f.radix {
			return nil, fmt.Errorf("cryptoprim: ff1: digit %d out of range for radix %d", d, f.radix)
		}
	}

	u := n / 2
	v := n - u
	A := append([]byte(nil), x[:u]...)
	B := append([]byte(nil), x[u:]...)

	t := len(f.tweak)
	radixBig := big.NewInt(int64(f.radix))

	b := (ceilLog2(f.radix)*v + 7) / 8
	d := 4*((b+3)/4) + 4

	P := make([]byte, 16)
	P[0] = 1
	P[1] = 2
	P[2] = 1
	P[3] = byte(f.radix >> 16)
	P[4] = byte(f.radix >> 8)
	P[5] = byte(f.radix)
	P[6] = 10
	P[7] = byte(u % 256)
	putUint32(P[8:12], uint32(n))
	putUint32(P[12:16], uint32(t))

	// Encrypt runs rounds 0..9 feeding B into each Q block and folding the
	// result into A; Decrypt runs the same recurrence in reverse (rounds
	// 9..0, Q fed from A, result folded into B) per NIST SP 800-38G.
	for round := 0; round < ff1Rounds; round++ {
		i := round
		if !encrypting {
			i = ff1Rounds - 1 - round
		}

		var m int
		if i%2 == 0 {
			m = u
		} else {
			m = v
		}
		modulus := new(big.Int).Exp(radixBig, big.NewInt(int64(m)), nil)

		var numSrc *big.Int
		if encrypting {
			numSrc = numRadix(B, f.radix)
		} else {
			numSrc = numRadix(A, f.radix)
		}

		qLen := ((-t - b - 1) % 16 + 16) % 16
		Q := make([]byte, 0, t+qLen+1+b)
		Q = append(Q, f.tweak...)
		Q = append(Q, make([]byte, qLen)...)
		Q = append(Q, byte(i))
		Q = append(Q, bigToBytes(numSrc, b)...)

		R, err := f.prf(append(append([]byte(nil), P...), Q...))
		if err != nil {
			return nil, err
		}

		S := append([]byte(nil), R...)
		for j := 1; len(S) < d; j++ {
			block := xorCounter(R, j)
			enc, err := f.ecbEncrypt(block)
			if err != nil {
				return nil, err
			}
			S = append(S, enc...)
		}
		S = S[:d]
		y := new(big.Int).SetBytes(S)

		var c *big.Int
		if encrypting {
			c = new(big.Int).Add(numRadix(A, f.radix), y)
		} else {
			c = new(big.Int).Sub(numRadix(B, f.radix), y)
		}
		c.Mod(c, modulus)
		C := strRadix(c, f.radix, m)

		if encrypting {
			A, B = B, C
		} else {
			B, A = A, C
		}
	}

	return append(A, B...), nil
}

// prf is AES-CBC-MAC with a zero IV over data, which must already be a
// multiple of the block size (callers pad P||Q to 16 bytes per NIST
// SP 800-38G before calling this).
func (f *FF1) prf(data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoprim: ff1: prf input not block-aligned")
	}
	iv := make([]byte, aes.BlockSize)
	mode := cipher.NewCBCEncrypter(f.block, iv)
	out := make([]byte, len(data))
	mode.CryptBlocks(out, data)
	return out[len(out)-aes.BlockSize:], nil
}

func (f *FF1) ecbEncrypt(block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("cryptoprim: ff1: block must be %d bytes", aes.BlockSize)
	}
	out := make([]byte, aes.BlockSize)
	f.block.Encrypt(out, block)
	return out, nil
}

func xorCounter(r []byte, counter int) []byte {
	out := append([]byte(nil), r...)
	c := make([]byte, len(out))
	putUint32(c[len(c)-4:], uint32(counter))
	for i := range out {
		out[i] ^= c[i]
	}
	return out
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func ceilLog2(radix int) int {
	bits := 0
	v := radix - 1
	for v > 0 {
		bits++
		v >>= 1
	}
	if bits == 0 {
		bits = 1
	}
	return bits
}

// numRadix parses a digit-value slice (most significant digit first) as
// a big.Int in the given radix.
func numRadix(digits []byte, radix int) *big.Int {
	n := big.NewInt(0)
	r := big.NewInt(int64(radix))
	for _, d := range digits {
		n.Mul(n, r)
		n.Add(n, big.NewInt(int64(d)))
	}
	return n
}

// strRadix renders n as exactly length digit-values in the given radix,
// most significant digit first.
func strRadix(n *big.Int, radix, length int) []byte {
	out := make([]byte, length)
	r := big.NewInt(int64(radix))
	v := new(big.Int).Set(n)
	mod := new(big.Int)
	for i := length - 1; i >= 0; i-- {
		v.DivMod(v, r, mod)
		out[i] = byte(mod.Int64())
	}
	return out
}

// bigToBytes renders n as exactly length big-endian bytes.
func bigToBytes(n *big.Int, length int) []byte {
	raw := n.Bytes()
	if len(raw) >= length {
		return raw[len(raw)-length:]
	}
	out := make([]byte, length)
	copy(out[length-len(raw):], raw)
	return out
}

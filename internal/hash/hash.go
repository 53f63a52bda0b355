package hash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

type VerifyResult int

const (
	VerifyFailed VerifyResult = iota
	VerifySuccess
)

var ErrUnknownAlgorithm = errors.New("unknown password hash algorithm")

// Hasher hashes and verifies user secrets. Callers never see the algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) VerifyResult
}

func New(algorithm string) (Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", "bcrypt":
		return Bcrypt{Cost: bcrypt.DefaultCost}, nil
	case "argon2id":
		return Argon2id{Params: DefaultArgon2idParams()}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(password string) (string, error) {
	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), b.Cost)
	if err != nil {
		return "", err
	}

	return string(hashbytes), nil
}

func (b Bcrypt) Verify(hash, password string) VerifyResult {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return VerifyFailed
	}
	return VerifySuccess
}

type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

const argon2Version = 19

// Argon2id encodes hashes as $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<key>.
type Argon2id struct {
	Params Argon2idParams
}

func (a Argon2id) Hash(password string) (string, error) {
	salt := make([]byte, a.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, a.Params.Iterations, a.Params.MemoryKiB, a.Params.Parallelism, a.Params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		a.Params.MemoryKiB,
		a.Params.Iterations,
		a.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func (a Argon2id) Verify(encoded, password string) VerifyResult {
	params, salt, expected, ok := decodeArgon2id(encoded)
	if !ok {
		return VerifyFailed
	}
	// refuse attacker-sized parameters
	if params.MemoryKiB > a.Params.MemoryKiB*2 || params.Iterations > a.Params.Iterations*2 {
		return VerifyFailed
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	if subtle.ConstantTimeCompare(key, expected) == 1 {
		return VerifySuccess
	}
	return VerifyFailed
}

func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, false
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, false
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, false
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2idParams{}, nil, nil, false
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Argon2idParams{}, nil, nil, false
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}, salt, key, true
}

package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"unicode/utf8"
)

// Account password policy. Registration and profile updates enforce the same bounds.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128

	// DefaultGeneratedLength is the length of passwords suggested by the CLI.
	DefaultGeneratedLength = 20
)

const (
	lowercaseChars = "abcdefghijklmnopqrstuvwxyz"
	uppercaseChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars     = "0123456789"
	symbolChars    = "!@#$%^&*()-_=+[]{};:,.?"
)

var ErrPasswordLength = fmt.Errorf("password length must be between %d and %d", MinPasswordLength, MaxPasswordLength)

// PasswordLengthOK reports whether password satisfies the account policy.
// Length is counted in characters, not bytes.
func PasswordLengthOK(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= MinPasswordLength && n <= MaxPasswordLength
}

var passwordClasses = []string{lowercaseChars, uppercaseChars, digitChars, symbolChars}

// GeneratePassword returns a random password of the given length containing
// at least one character of every class.
func GeneratePassword(length int) (string, error) {
	if length < MinPasswordLength || length > MaxPasswordLength {
		return "", ErrPasswordLength
	}

	var pool string
	for _, class := range passwordClasses {
		pool += class
	}

	result := make([]byte, length)
	for i := range result {
		charset := pool
		if i < len(passwordClasses) {
			charset = passwordClasses[i]
		}
		ch, err := randChar(charset)
		if err != nil {
			return "", err
		}
		result[i] = ch
	}

	// Fisher-Yates so the guaranteed characters do not sit at the front.
	for i := len(result) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}

	return string(result), nil
}

func randChar(charset string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[n.Int64()], nil
}

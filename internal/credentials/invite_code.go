package credentials

import (
	"crypto/rand"
	"math/big"
)

const (
	inviteLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	inviteDigits  = "0123456789"
)

// GenerateInviteCode generates a random family invite code in the form
// "LLL-DDD" (three uppercase letters, hyphen, three digits). Codes are not
// checked against existing families; the store's unique index on invite_code
// rejects the rare collision at write time.
func GenerateInviteCode() (string, error) {
	code := make([]byte, 7)

	for i := 0; i < 3; i++ {
		c, err := randomChar(inviteLetters)
		if err != nil {
			return "", err
		}
		code[i] = c
	}

	code[3] = '-'

	for i := 4; i < 7; i++ {
		c, err := randomChar(inviteDigits)
		if err != nil {
			return "", err
		}
		code[i] = c
	}

	return string(code), nil
}

// randomChar picks a random character from a charset
func randomChar(charset string) (byte, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
	if err != nil {
		return 0, err
	}
	return charset[num.Int64()], nil
}

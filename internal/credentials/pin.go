package credentials

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var (
	pinPattern     = regexp.MustCompile(`^[0-9]{4}$`)
	tempPINPattern = regexp.MustCompile(`^[0-9]{6}$`)
)

// sequentialPINs are the 14 ascending/descending 4-digit runs rejected as
// permanent PINs.
var sequentialPINs = map[string]struct{}{
	"0123": {}, "1234": {}, "2345": {}, "3456": {}, "4567": {}, "5678": {}, "6789": {},
	"3210": {}, "4321": {}, "5432": {}, "6543": {}, "7654": {}, "8765": {}, "9876": {},
}

// CheckPIN validates a permanent 4-digit PIN: digits only, no sequential
// runs (either direction), no repeated-digit patterns.
// Returns ok plus a reason usable in error payloads.
func CheckPIN(pin string) (bool, string) {
	if !pinPattern.MatchString(pin) {
		return false, "PIN must be exactly 4 digits"
	}
	if _, seq := sequentialPINs[pin]; seq {
		return false, "SEQUENTIAL"
	}
	if pin[0] == pin[1] && pin[1] == pin[2] && pin[2] == pin[3] {
		return false, "REPEATED"
	}
	return true, ""
}

// CheckTempPIN validates a temporary 6-digit PIN's shape.
func CheckTempPIN(pin string) bool {
	return tempPINPattern.MatchString(pin)
}

// GenerateTempPIN draws a 6-digit PIN uniformly from [100000, 999999].
func GenerateTempPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate temp PIN: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// HashPIN hashes a PIN with bcrypt at PasswordCost.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash PIN: %w", err)
	}
	return string(h), nil
}

// VerifyPIN reports whether pin matches the stored bcrypt hash.
func VerifyPIN(pin, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

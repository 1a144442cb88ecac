package utils

import "golang.org/x/crypto/bcrypt"

// HashSecret returns a bcrypt hash of the webhook shared secret so the
// plaintext never lands in the database.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckSecret compares a stored secret hash with a candidate from the wire.
func CheckSecret(hashedSecret, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedSecret), []byte(secret)) == nil
}

package auth

import "github.com/alexedwards/argon2id"

// dummyHash is compared against when no account matches, so a failed login
// costs the same whether or not the email exists.
var dummyHash, _ = argon2id.CreateHash("parcel-bookings-dummy-password", argon2id.DefaultParams)

// HashPassword returns a salted argon2id hash in PHC string format.
func HashPassword(plain string) (string, error) {
	return argon2id.CreateHash(plain, argon2id.DefaultParams)
}

// CheckPassword reports whether plain matches hash. The comparison is
// constant-time; a malformed hash never matches.
func CheckPassword(plain, hash string) bool {
	ok, err := argon2id.ComparePasswordAndHash(plain, hash)
	return err == nil && ok
}

// BurnPasswordCheck performs a throwaway comparison.
func BurnPasswordCheck(plain string) {
	_, _ = argon2id.ComparePasswordAndHash(plain, dummyHash)
}

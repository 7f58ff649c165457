package hasher

import "golang.org/x/crypto/bcrypt"

// Hash returns a salted bcrypt digest of the password. The cost is
// embedded in the digest, so digests produced with older cost
// parameters keep verifying after the default changes.
func Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(digest), nil
}

// Verify reports whether the password matches the stored digest.
// A malformed digest verifies as false rather than failing.
func Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

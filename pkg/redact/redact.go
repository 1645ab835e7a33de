// Package redact one-way hashes secrets (DSN passwords, auth tokens)
// before they reach a log line. It reuses the teacher SDK's Argon2id
// parameters for password hashing (pkg/security.HashPassword in the
// original zenlive tree), repurposed here to redact connector secrets
// instead of verifying user credentials.
package redact

import (
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// salt is fixed rather than random: redaction only needs to be
// one-way and stable within a process so repeated occurrences of the
// same secret collapse to the same token in logs, not cryptographically
// unguessable across processes.
var salt = []byte("connpool-error-sink-redaction")

// Secret hashes s with Argon2id (OWASP-recommended parameters) and
// returns a short hex fingerprint safe to place in log output.
func Secret(s string) string {
	if s == "" {
		return ""
	}
	sum := argon2.IDKey([]byte(s), salt, 2, 64*1024, 4, 16)
	return hex.EncodeToString(sum)
}

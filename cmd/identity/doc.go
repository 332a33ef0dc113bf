// Package identity covers who a connection belongs to: Argon2id password
// hashing for account credentials, signed session tokens, and the resolver
// that turns a presented token into a canonical user before any presence
// or routing state is touched.
package identity

// Package password implements credential hashing and the password policy:
// Argon2id hashing in PHC string format, composition and strength rules,
// reuse detection against the account's hash history, and age-based expiry.
//
// Policy evaluation is a pure function of its inputs and reports every
// failing rule at once rather than stopping at the first violation, so a
// user can fix a rejected password in one round trip.
package password

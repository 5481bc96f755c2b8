// Package password stores account passwords as Argon2id PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Salt and key are unpadded standard base64; padded input is accepted on
// read. [Hasher.Stale] flags hashes written under weaker costs so the
// account directory can rewrite them after the next successful sign-in.
//
// Length policy beyond empty and oversized input belongs to the form.
package password

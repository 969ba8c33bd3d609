package memo

import "errors"

// ErrUndecodable is returned by Decode when a blob cannot be decrypted
// under the given shared secret, or is too short to contain a type header.
// It is not a fatal condition — every caller treats it the same as "no
// memo present" (spec.md §9: "its absence is non-fatal").
var ErrUndecodable = errors.New("memo: undecodable")

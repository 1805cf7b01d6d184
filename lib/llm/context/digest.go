// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/converse/lib/llm"
)

// digestKey separates summary digests from any other BLAKE3 use: the
// ASCII domain name, zero-padded to 32 bytes.
var digestKey = [32]byte{
	'c', 'o', 'n', 'v', 'e', 'r', 's', 'e', '.', 's', 'u', 'm', 'm', 'a', 'r', 'y',
	'.', 'r', 'e', 'p', 'l', 'a', 'c', 'e', 'd', 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the hex BLAKE3 keyed hash of messages in order. Role
// and content are length-prefixed so no two distinct sequences
// collide by concatenation.
//
// Storage uses it to confirm that the entries it is about to mark
// superseded are exactly the ones a [Summary] replaced.
func Digest(messages []llm.Message) string {
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("context: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var length [8]byte
	writeField := func(field string) {
		size := uint64(len(field))
		for i := range length {
			length[i] = byte(size >> (8 * i))
		}
		hasher.Write(length[:])
		hasher.Write([]byte(field))
	}
	for _, message := range messages {
		writeField(string(message.Role))
		writeField(message.Content)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ V /| |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package cbencoding implements the unsigned LEB128 variable-length integer
// encoding used to prefix collection ids onto keys.
package cbencoding

import "errors"

// ErrTooLong is returned when decoding a value whose encoding exceeds the
// maximum byte length for the target width (5 bytes for a uint32).
var ErrTooLong = errors.New("cbencoding: leb128 value exceeds maximum length")

const maxUint32Bytes = 5

// EncodeUint32 appends the unsigned LEB128 encoding of v to dst and returns
// the extended slice.
func EncodeUint32(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		dst = append(dst, b)
		return dst
	}
}

// DecodeUint32 reads an unsigned LEB128-encoded uint32 from the front of
// buf, returning the decoded value and the unconsumed remainder. It rejects
// inputs where the stop byte (high bit clear) is absent within
// maxUint32Bytes bytes.
func DecodeUint32(buf []byte) (uint32, []byte, error) {
	var result uint32
	var shift uint
	for i := 0; i < maxUint32Bytes; i++ {
		if i >= len(buf) {
			return 0, nil, ErrTooLong
		}
		b := buf[i]
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, buf[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, ErrTooLong
}

// SplitCollectionID decodes the LEB128-prefixed collection id from a raw
// key, returning the id and the remaining logical key bytes.
func SplitCollectionID(key []byte) (uint32, []byte, error) {
	return DecodeUint32(key)
}

// PrefixCollectionID prepends the LEB128 encoding of cid to key.
func PrefixCollectionID(cid uint32, key []byte) []byte {
	out := EncodeUint32(make([]byte, 0, 5+len(key)), cid)
	return append(out, key...)
}

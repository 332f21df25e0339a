package cbencoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeUint32_RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 1 << 20, 0xFFFFFFFF} {
		enc := EncodeUint32(nil, v)
		got, rem, err := DecodeUint32(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Empty(t, rem)
	}
}

func TestDecodeUint32_TooLong(t *testing.T) {
	_, _, err := DecodeUint32([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestDecodeUint32_CornerCases(t *testing.T) {
	v, rem, err := DecodeUint32([]byte{0x81, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
	assert.Empty(t, rem)

	v, rem, err = DecodeUint32([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFF), v)
	assert.Empty(t, rem)
}

func TestSplitCollectionID(t *testing.T) {
	key := PrefixCollectionID(42, []byte("mydoc"))
	cid, rest, err := SplitCollectionID(key)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), cid)
	assert.Equal(t, []byte("mydoc"), rest)
}

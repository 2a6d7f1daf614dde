package codec

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestBuilderReaderRoundTrip(t *testing.T) {
	frame := NewBuilder().
		PutUint64(42).
		PutString("users:u1").
		PutUint8(1).
		PutBytes([]byte(`{"a":1}`)).
		Finish()

	r, err := VerifyFrame(frame)
	require.NoError(t, err)

	seq, err := r.Uint64()
	require.NoError(t, err)
	require.Equal(t, uint64(42), seq)

	id, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "users:u1", id)

	flag, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(1), flag)

	body, err := r.Bytes()
	require.NoError(t, err)
	if diff := cmp.Diff([]byte(`{"a":1}`), body); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
	require.True(t, r.Done())
}

func TestVerifyFrameRejectsBitFlip(t *testing.T) {
	frame := NewBuilder().PutString("hello").Finish()
	flipped := append([]byte(nil), frame...)
	flipped[len(flipped)-1] ^= 0xFF

	_, err := VerifyFrame(flipped)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorrupt))
}

func TestVerifyFrameRejectsTruncatedTail(t *testing.T) {
	frame := NewBuilder().PutString("hello").Finish()
	truncated := frame[:len(frame)-2]

	_, err := VerifyFrame(truncated)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorrupt))
}

func TestVerifyFrameRejectsOversizedLengthPrefix(t *testing.T) {
	frame := NewBuilder().PutUint32(0xFFFFFFFF).Finish()
	// Corrupt the outer length field to disagree with the real frame size.
	byteOrder.PutUint32(frame[:LengthSize], uint32(len(frame)+100))

	_, err := VerifyFrame(frame)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrCorrupt))
}

package wireline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame := []byte("not actually a cryptchats frame, just some bytes")
	line := EncodeLine(frame)
	got, err := DecodeLine(line)
	require.NoError(t, err)
	require.Equal(t, frame, got)
}

func TestDecodeLineRejectsGarbage(t *testing.T) {
	_, err := DecodeLine("not valid base64 !!!")
	require.Error(t, err)
}

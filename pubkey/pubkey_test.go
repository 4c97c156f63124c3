package pubkey

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
)

func randomKey(t *testing.T) crypto.PublicKey {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return kp.PublicKey()
}

func TestEncodeParseRoundTrip(t *testing.T) {
	pk := randomKey(t)
	encoded := Encode(pk)
	require.Len(t, encoded, EncodedLen)

	parsed, err := Parse(encoded)
	require.NoError(t, err)
	require.Equal(t, pk, parsed)
}

func TestParseAcceptsDisplayPrefix(t *testing.T) {
	pk := randomKey(t)
	display := Display(pk)
	require.Len(t, display, len(DisplayPrefix)+EncodedLen)

	parsed, err := Parse(display)
	require.NoError(t, err)
	require.Equal(t, pk, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"too-short",
		"pubky" + "not-the-right-length",
		string(make([]byte, EncodedLen)), // null bytes, not valid z-base-32
	}
	for _, c := range cases {
		_, err := Parse(c)
		require.Error(t, err, "expected error for input %q", c)
	}
}

func TestIsPkarrDomain(t *testing.T) {
	pk := randomKey(t)
	require.True(t, IsPkarrDomain(Encode(pk)))
	require.True(t, IsPkarrDomain("_pubky."+Encode(pk)))
	require.False(t, IsPkarrDomain("example.com"))
}

func TestParseURLPubkyScheme(t *testing.T) {
	pk := randomKey(t)
	parsed, path, err := ParseURL("pubky://" + Encode(pk) + "/pub/app/hello.txt")
	require.NoError(t, err)
	require.Equal(t, pk, parsed)
	require.Equal(t, "/pub/app/hello.txt", path)
}

func TestParseURLHTTPSEquivalence(t *testing.T) {
	pk := randomKey(t)
	fromPubky, pathA, err := ParseURL("pubky://" + Encode(pk) + "/pub/x")
	require.NoError(t, err)
	fromHTTPS, pathB, err := ParseURL("https://_pubky." + Encode(pk) + "/pub/x")
	require.NoError(t, err)

	require.Equal(t, fromPubky, fromHTTPS)
	require.Equal(t, pathA, pathB)
}

func TestParseURLRejectsOtherSchemes(t *testing.T) {
	_, _, err := ParseURL("ftp://example.com/x")
	require.ErrorIs(t, err, ErrNotPubkyURL)
}

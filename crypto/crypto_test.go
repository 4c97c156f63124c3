package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("hello pubky")
	sig := kp.Sign(msg)
	require.True(t, Verify(kp.PublicKey(), msg, sig))
}

func TestVerifyRejectsBitFlips(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("some canonical bytes")
	sig := kp.Sign(msg)

	for i := range msg {
		flipped := append([]byte(nil), msg...)
		flipped[i] ^= 0x01
		require.False(t, Verify(kp.PublicKey(), flipped, sig), "bit flip at byte %d should invalidate signature", i)
	}
}

func TestKeypairFromSecretKeyIsDeterministic(t *testing.T) {
	kp1, err := GenerateKeypair()
	require.NoError(t, err)

	kp2 := KeypairFromSecretKey(kp1.SecretKey())
	require.Equal(t, kp1.PublicKey(), kp2.PublicKey())
}

func TestHashBytesIsDeterministic(t *testing.T) {
	data := []byte("content addressed")
	require.Equal(t, HashBytes(data), HashBytes(data))
	require.NotEqual(t, HashBytes(data), HashBytes([]byte("different content")))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret, err := RandomBytes(32)
	require.NoError(t, err)

	plaintext := []byte("a capability-bearing auth token")
	ciphertext, err := Encrypt(plaintext, secret)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, secret)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDecryptFailsOnWrongKey(t *testing.T) {
	secret, err := RandomBytes(32)
	require.NoError(t, err)
	other, err := RandomBytes(32)
	require.NoError(t, err)

	ciphertext, err := Encrypt([]byte("secret payload"), secret)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, other)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptFailsOnTamper(t *testing.T) {
	secret, err := RandomBytes(32)
	require.NoError(t, err)

	ciphertext, err := Encrypt([]byte("secret payload"), secret)
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Decrypt(ciphertext, secret)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestRandomHashIsRandom(t *testing.T) {
	h1, err := RandomHash()
	require.NoError(t, err)
	h2, err := RandomHash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}

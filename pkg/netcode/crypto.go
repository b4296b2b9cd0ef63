package netcode

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// SealPrivate encrypts a connect token's private section plaintext with
// XChaCha20-Poly1305 under the shared server private key, AD = version ‖
// protocol_id ‖ expire_timestamp.
func SealPrivate(key [keySize]byte, nonce [tokenNonceSize]byte, plaintext []byte, version string, protocolID uint64, expire int64) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "netcode: private aead init")
	}
	ad := privateAD(version, protocolID, expire)
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

// OpenPrivate decrypts and authenticates a connect token's private section.
func OpenPrivate(key [keySize]byte, nonce [tokenNonceSize]byte, ciphertext []byte, version string, protocolID uint64, expire int64) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "netcode: private aead init")
	}
	ad := privateAD(version, protocolID, expire)
	pt, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrCrypto
	}
	return pt, nil
}

// ErrCrypto marks decrypt/MAC failures, never unwind.
var ErrCrypto = errors.New("netcode: decryption or authentication failed")

// packetNonce derives the 12-byte ChaCha20-Poly1305 nonce for a non-Request
// packet from its sequence number).
func packetNonce(sequence uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[:8], sequence)
	return nonce
}

// sealPacket encrypts a non-Request packet body under the session's
// directional key. ad = version ‖ protocol_id ‖ prefix_byte.
func sealPacket(key [keySize]byte, sequence uint64, prefix byte, plaintext []byte, version string, protocolID uint64) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "netcode: packet aead init")
	}
	nonce := packetNonce(sequence)
	ad := packetAD(prefix, version, protocolID)
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

func openPacket(key [keySize]byte, sequence uint64, prefix byte, ciphertext []byte, version string, protocolID uint64) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "netcode: packet aead init")
	}
	nonce := packetNonce(sequence)
	ad := packetAD(prefix, version, protocolID)
	pt, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrCrypto
	}
	return pt, nil
}

func packetAD(prefix byte, version string, protocolID uint64) []byte {
	ad := make([]byte, 0, len(version)+8+1)
	ad = append(ad, []byte(version)...)
	ad = appendU64(ad, protocolID)
	ad = append(ad, prefix)
	return ad
}

// randomKey generates a fresh AEAD key from the system CSPRNG.
func randomKey() ([keySize]byte, error) {
	var k [keySize]byte
	_, err := rand.Read(k[:])
	return k, err
}

// randomNonce generates a fresh XChaCha20-Poly1305 nonce.
func randomNonce() ([tokenNonceSize]byte, error) {
	var n [tokenNonceSize]byte
	_, err := rand.Read(n[:])
	return n, err
}

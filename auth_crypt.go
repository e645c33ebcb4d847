package go_realmd

import "fmt"

// Direction keys of the world session cipher. The server encrypts with the
// first, so the client decrypts with it, and the reverse for the second.
var (
	serverEncryptionKey = hexBytes("CC98AE04E897EACA12DDC09342915357")
	serverDecryptionKey = hexBytes("C2B3723CC6AED9B5343C53EE2F4367CE")
)

// AuthCrypt holds the two RC4 streams of a world connection, one per
// direction. Each is keyed with HMAC-SHA1(direction key, K) and has its
// first ARC4_DROP_LENGTH bytes discarded. Only the connection's goroutine
// may use it.
type AuthCrypt struct {
	decrypt *ARC4
	encrypt *ARC4
}

// NewAuthCrypt returns an AuthCrypt that is not keyed yet.
func NewAuthCrypt() *AuthCrypt {
	return &AuthCrypt{}
}

// Init keys both directions from the session key.
func (c *AuthCrypt) Init(key SessionKey) error {
	decryptHash := HMACSHA1Sum(serverEncryptionKey, key[:])
	encryptHash := HMACSHA1Sum(serverDecryptionKey, key[:])

	decrypt, err := NewARC4(decryptHash[:])
	if err != nil {
		return err
	}
	encrypt, err := NewARC4(encryptHash[:])
	if err != nil {
		return err
	}
	decrypt.Drop(ARC4_DROP_LENGTH)
	encrypt.Drop(ARC4_DROP_LENGTH)

	c.decrypt = decrypt
	c.encrypt = encrypt
	return nil
}

// IsInitialized reports whether Init has run.
func (c *AuthCrypt) IsInitialized() bool {
	return c.decrypt != nil && c.encrypt != nil
}

// DecryptRecv decrypts inbound bytes in place.
func (c *AuthCrypt) DecryptRecv(p []byte) error {
	if !c.IsInitialized() {
		return fmt.Errorf("%w: decrypt before init", ErrNotInitialized)
	}
	c.decrypt.Process(p)
	return nil
}

// EncryptSend encrypts outbound bytes in place.
func (c *AuthCrypt) EncryptSend(p []byte) error {
	if !c.IsInitialized() {
		return fmt.Errorf("%w: encrypt before init", ErrNotInitialized)
	}
	c.encrypt.Process(p)
	return nil
}

// Package walletkeys provides the signing capability PayAttn binaries
// need to submit escrow instructions, kept behind a narrow Signer
// interface. Wallet connection and broader key-management infrastructure
// (hardware wallets, browser extensions, multi-party custody) are out of
// scope; this package only supplies what the escrow simulator and
// coordinator daemon need to sign their own transactions in development,
// plus the interface a production KMS-backed signer would implement.
package walletkeys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/payattn/payattn/core"
)

// ErrKeyNotFound is returned when a keystore has no key for the requested
// public key.
var ErrKeyNotFound = errors.New("walletkeys: key not found")

// Signer signs payloads on behalf of one Solana-style keypair. It is the
// only capability the rest of PayAttn needs from a key-management system.
type Signer interface {
	Pubkey() core.Pubkey
	Sign(message []byte) ([]byte, error)
}

// Verify checks an ed25519 signature against a PayAttn public key. No
// handler or coordinator method in this module calls it.
func Verify(pubkey core.Pubkey, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey.Bytes()), message, signature)
}

// localSigner signs with an in-process ed25519 private key.
type localSigner struct {
	priv ed25519.PrivateKey
	pub  core.Pubkey
}

func newLocalSigner(priv ed25519.PrivateKey) (*localSigner, error) {
	pub, err := core.PubkeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &localSigner{priv: priv, pub: pub}, nil
}

func (s *localSigner) Pubkey() core.Pubkey { return s.pub }

func (s *localSigner) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, message), nil
}

// GenerateKeypair creates a fresh ed25519 keypair.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// fileKeyRecord is the on-disk JSON shape for one key in a FileKeystore.
type fileKeyRecord struct {
	Pubkey     string `json:"pubkey"`     // base58
	PrivateKey string `json:"private_key"` // hex
}

// FileKeystore is a development keystore that loads ed25519 keypairs from
// a JSON file on disk. It is not suitable for production custody: the
// private key material sits in plaintext in the file.
type FileKeystore struct {
	signers map[core.Pubkey]*localSigner
}

// LoadFileKeystore reads a keystore file written by SaveFileKeystore.
func LoadFileKeystore(path string) (*FileKeystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []fileKeyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	ks := &FileKeystore{signers: make(map[core.Pubkey]*localSigner, len(records))}
	for _, r := range records {
		priv, err := decodeHexPrivateKey(r.PrivateKey)
		if err != nil {
			return nil, err
		}
		signer, err := newLocalSigner(priv)
		if err != nil {
			return nil, err
		}
		ks.signers[signer.Pubkey()] = signer
	}
	return ks, nil
}

// NewFileKeystore builds an in-memory keystore from already-generated
// keys, useful for tests and the escrow simulator's bootstrap accounts.
func NewFileKeystore(keys ...ed25519.PrivateKey) (*FileKeystore, error) {
	ks := &FileKeystore{signers: make(map[core.Pubkey]*localSigner, len(keys))}
	for _, priv := range keys {
		signer, err := newLocalSigner(priv)
		if err != nil {
			return nil, err
		}
		ks.signers[signer.Pubkey()] = signer
	}
	return ks, nil
}

// SaveFileKeystore writes ks to path in the format LoadFileKeystore reads.
func (ks *FileKeystore) SaveFileKeystore(path string) error {
	records := make([]fileKeyRecord, 0, len(ks.signers))
	for pub, s := range ks.signers {
		records = append(records, fileKeyRecord{
			Pubkey:     pub.String(),
			PrivateKey: hex.EncodeToString(s.priv),
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Signer returns the Signer for pubkey, or ErrKeyNotFound.
func (ks *FileKeystore) Signer(pubkey core.Pubkey) (Signer, error) {
	s, ok := ks.signers[pubkey]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return s, nil
}

func decodeHexPrivateKey(s string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(b), nil
}

// scrypt parameters for passphrase-derived keystore encryption keys. N=2^15
// is geth's default cost factor; raising it trades startup latency for
// brute-force resistance.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// encryptedFile is the on-disk shape of a passphrase-protected keystore:
// the plaintext keystore JSON, sealed with nacl/secretbox under a key
// derived from the passphrase via scrypt.
type encryptedFile struct {
	Salt  string `json:"salt"`  // hex, scrypt salt
	Nonce string `json:"nonce"` // hex, secretbox nonce
	Box   string `json:"box"`   // hex, sealed ciphertext
}

// SaveFileKeystoreEncrypted writes ks to path, sealed under passphrase.
// This is the production-custody counterpart to SaveFileKeystore: the
// private key material never touches disk in plaintext.
func (ks *FileKeystore) SaveFileKeystoreEncrypted(path string, passphrase []byte) error {
	records := make([]fileKeyRecord, 0, len(ks.signers))
	for pub, s := range ks.signers {
		records = append(records, fileKeyRecord{
			Pubkey:     pub.String(),
			PrivateKey: hex.EncodeToString(s.priv),
		})
	}
	plaintext, err := json.Marshal(records)
	if err != nil {
		return err
	}

	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return err
	}
	var secretKey [32]byte
	copy(secretKey[:], key)

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return err
	}
	box := secretbox.Seal(nil, plaintext, &nonce, &secretKey)

	out := encryptedFile{
		Salt:  hex.EncodeToString(salt),
		Nonce: hex.EncodeToString(nonce[:]),
		Box:   hex.EncodeToString(box),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadFileKeystoreEncrypted reads a keystore written by
// SaveFileKeystoreEncrypted, unsealing it under passphrase. An incorrect
// passphrase is indistinguishable from corrupted ciphertext: both fail
// the secretbox authentication check.
func LoadFileKeystoreEncrypted(path string, passphrase []byte) (*FileKeystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var enc encryptedFile
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(enc.Salt)
	if err != nil {
		return nil, err
	}
	nonceBytes, err := hex.DecodeString(enc.Nonce)
	if err != nil {
		return nil, err
	}
	box, err := hex.DecodeString(enc.Box)
	if err != nil {
		return nil, err
	}

	key, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, err
	}
	var secretKey [32]byte
	copy(secretKey[:], key)
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	plaintext, ok := secretbox.Open(nil, box, &nonce, &secretKey)
	if !ok {
		return nil, errors.New("walletkeys: incorrect passphrase or corrupted keystore")
	}

	var records []fileKeyRecord
	if err := json.Unmarshal(plaintext, &records); err != nil {
		return nil, err
	}
	ks := &FileKeystore{signers: make(map[core.Pubkey]*localSigner, len(records))}
	for _, r := range records {
		priv, err := decodeHexPrivateKey(r.PrivateKey)
		if err != nil {
			return nil, err
		}
		signer, err := newLocalSigner(priv)
		if err != nil {
			return nil, err
		}
		ks.signers[signer.Pubkey()] = signer
	}
	return ks, nil
}

// KMSKeystore is the interface a production key-management backend (AWS
// KMS, GCP Cloud KMS, an HSM) would implement. No concrete implementation
// ships here: provisioning and authenticating against a real KMS is
// infrastructure outside this service's scope.
type KMSKeystore interface {
	// Signer returns a Signer that forwards Sign calls to the KMS key
	// identified by keyID, without ever exposing the private key material
	// to the calling process.
	Signer(ctx context.Context, keyID string) (Signer, error)
}

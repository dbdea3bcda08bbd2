package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"airfarm/internal/evm"
	"airfarm/internal/logger"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrInvalidCredential indicates the derived key cannot decrypt an existing
	// record, i.e. the master secret is wrong.
	ErrInvalidCredential = errors.New("invalid master secret for vault")
	// ErrVaultCorrupt indicates the persisted vault file is malformed.
	ErrVaultCorrupt = errors.New("vault file is corrupt")
	// ErrInvalidWalletCount indicates a non-positive wallet count was requested.
	ErrInvalidWalletCount = errors.New("wallet count must be positive")
	// ErrWalletNotFound indicates no wallet with the given id exists.
	ErrWalletNotFound = errors.New("wallet not found in vault")
)

const (
	vaultVersion  = 1
	kdfIterations = 100_000
	keyLength     = 32
	saltLength    = 16
)

// Wallet is the public view of a vault record: address only, no secrets.
type Wallet struct {
	ID      int
	Address string
}

// record is the persisted form of one wallet. The private key is stored as
// AES-256-GCM ciphertext under the derived vault key.
type record struct {
	ID         int    `json:"id"`
	Address    string `json:"address"`
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// envelope is the on-disk layout of the vault file.
type envelope struct {
	Version       int      `json:"version"`
	KDFIterations int      `json:"kdf_iterations"`
	Salt          string   `json:"salt"`
	Wallets       []record `json:"wallets"`
}

// Vault holds encrypted wallet private keys and performs key derivation and
// scoped decryption. All operations except CreateWallets are read-only.
type Vault struct {
	path    string
	key     []byte
	salt    []byte
	iters   int
	records []record
	log     logger.Logger
}

// DeriveKey derives the vault encryption key from an operator secret and a
// salt using PBKDF2-HMAC-SHA256. Deterministic for a given (secret, salt).
func DeriveKey(secret string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), salt, iterations, keyLength, sha256.New)
}

// Open loads the vault at path, deriving the key from secret. A missing file
// yields an empty vault with a fresh random salt; the file is only created by
// the first CreateWallets call. If records exist, the key is verified against
// the first one so a wrong secret fails fast with ErrInvalidCredential.
func Open(path, secret string, log logger.Logger) (*Vault, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read vault file %q: %w", path, err)
		}
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate vault salt: %w", err)
		}
		log.Debug("No existing vault found, starting empty", "path", path)
		return &Vault{
			path:  path,
			salt:  salt,
			iters: kdfIterations,
			key:   DeriveKey(secret, salt, kdfIterations),
			log:   log,
		}, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVaultCorrupt, path, err)
	}
	if env.Version != vaultVersion || env.KDFIterations <= 0 {
		return nil, fmt.Errorf("%w: unsupported vault version %d", ErrVaultCorrupt, env.Version)
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: malformed salt", ErrVaultCorrupt)
	}

	v := &Vault{
		path:    path,
		salt:    salt,
		iters:   env.KDFIterations,
		key:     DeriveKey(secret, salt, env.KDFIterations),
		records: env.Wallets,
		log:     log,
	}

	// Verify the derived key against the first record so a wrong master
	// secret is reported at startup, not mid-cycle.
	if len(v.records) > 0 {
		keyBytes, err := v.decrypt(v.records[0])
		if err != nil {
			return nil, err
		}
		zero(keyBytes)
	}

	log.Debug("Vault opened", "path", path, "wallets", len(v.records))
	return v, nil
}

// CreateWallets generates count new key pairs, encrypts each private key and
// appends the records to the persisted wallet set. This is the only vault
// operation that writes to disk.
func (v *Vault) CreateWallets(count int) ([]Wallet, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWalletCount, count)
	}

	base := len(v.records)
	created := make([]Wallet, 0, count)
	for i := 0; i < count; i++ {
		pk, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
		keyBytes := crypto.FromECDSA(pk)
		address := crypto.PubkeyToAddress(pk.PublicKey).Hex()

		rec, err := v.encrypt(len(v.records), address, keyBytes)
		zero(keyBytes)
		pk.D.SetInt64(0)
		if err != nil {
			return nil, err
		}

		v.records = append(v.records, rec)
		created = append(created, Wallet{ID: rec.ID, Address: rec.Address})
		v.log.Info("Created wallet", "id", rec.ID, "address", rec.Address)
	}

	if err := v.save(); err != nil {
		// Keep the in-memory set aligned with disk so a retry cannot
		// persist wallets the caller never received.
		v.records = v.records[:base]
		return nil, err
	}
	v.log.Success("Wallet set persisted", "path", v.path, "total", len(v.records))
	return created, nil
}

// ListWallets returns public metadata for every wallet, in creation order.
func (v *Vault) ListWallets() []Wallet {
	wallets := make([]Wallet, 0, len(v.records))
	for _, rec := range v.records {
		wallets = append(wallets, Wallet{ID: rec.ID, Address: rec.Address})
	}
	return wallets
}

// Len returns the number of wallets in the vault.
func (v *Vault) Len() int {
	return len(v.records)
}

// WithSigner decrypts the wallet's private key into a short-lived signing
// context and runs fn with it. The cleartext key material is zeroed on every
// exit path; fn must not retain the signer.
func (v *Vault) WithSigner(id int, fn func(*evm.Signer) error) error {
	var rec *record
	for i := range v.records {
		if v.records[i].ID == id {
			rec = &v.records[i]
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("%w: id %d", ErrWalletNotFound, id)
	}

	keyBytes, err := v.decrypt(*rec)
	if err != nil {
		return err
	}
	defer zero(keyBytes)

	pk, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return fmt.Errorf("%w: wallet %d holds an invalid key", ErrVaultCorrupt, id)
	}
	defer pk.D.SetInt64(0)

	signer, err := evm.NewSigner(pk)
	if err != nil {
		return err
	}
	return fn(signer)
}

// encrypt seals keyBytes into a new record under the vault key.
func (v *Vault) encrypt(id int, address string, keyBytes []byte) (record, error) {
	gcm, err := v.aead()
	if err != nil {
		return record{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return record{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, keyBytes, []byte(address))
	return record{
		ID:         id,
		Address:    address,
		Ciphertext: hex.EncodeToString(ciphertext),
		Nonce:      hex.EncodeToString(nonce),
	}, nil
}

// decrypt opens a record's ciphertext. An authentication failure maps to
// ErrInvalidCredential, malformed encoding to ErrVaultCorrupt.
func (v *Vault) decrypt(rec record) ([]byte, error) {
	ciphertext, err := hex.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %d ciphertext is not hex", ErrVaultCorrupt, rec.ID)
	}
	nonce, err := hex.DecodeString(rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %d nonce is not hex", ErrVaultCorrupt, rec.ID)
	}
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: wallet %d nonce has wrong length", ErrVaultCorrupt, rec.ID)
	}
	keyBytes, err := gcm.Open(nil, nonce, ciphertext, []byte(rec.Address))
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %d", ErrInvalidCredential, rec.ID)
	}
	return keyBytes, nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return gcm, nil
}

// save writes the whole envelope to disk. Plain file semantics keep the vault
// safe to back up by simple copy between cycles.
func (v *Vault) save() error {
	env := envelope{
		Version:       vaultVersion,
		KDFIterations: v.iters,
		Salt:          hex.EncodeToString(v.salt),
		Wallets:       v.records,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal vault: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(v.path), 0750); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write vault file %q: %w", v.path, err)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

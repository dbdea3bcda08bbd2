package vault

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"airfarm/internal/evm"
	"airfarm/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "correct horse battery staple"

func testVaultPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "wallets.enc")
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	first := DeriveKey(testSecret, salt, kdfIterations)
	second := DeriveKey(testSecret, salt, kdfIterations)
	assert.Equal(t, first, second)
	assert.Len(t, first, keyLength)

	other := DeriveKey("different secret", salt, kdfIterations)
	assert.NotEqual(t, first, other)
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	path := testVaultPath(t)

	v, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	assert.Empty(t, v.ListWallets())

	// The file is only created by the first CreateWallets call.
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateWalletsRejectsNonPositiveCount(t *testing.T) {
	v, err := Open(testVaultPath(t), testSecret, logger.NewNop())
	require.NoError(t, err)

	for _, count := range []int{0, -1} {
		_, err := v.CreateWallets(count)
		assert.ErrorIs(t, err, ErrInvalidWalletCount)
	}
	assert.Equal(t, 0, v.Len())
}

func TestCreateWalletsAndReopen(t *testing.T) {
	path := testVaultPath(t)

	v, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)

	created, err := v.CreateWallets(3)
	require.NoError(t, err)
	require.Len(t, created, 3)
	for i, w := range created {
		assert.Equal(t, i, w.ID)
		assert.Regexp(t, `^0x[0-9a-fA-F]{40}$`, w.Address)
	}

	reopened, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, created, reopened.ListWallets())
}

func TestWithSignerMatchesStoredAddress(t *testing.T) {
	v, err := Open(testVaultPath(t), testSecret, logger.NewNop())
	require.NoError(t, err)

	created, err := v.CreateWallets(2)
	require.NoError(t, err)

	for _, w := range created {
		var got string
		err := v.WithSigner(w.ID, func(signer *evm.Signer) error {
			got = signer.Address().Hex()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, w.Address, got)
	}
}

func TestWithSignerUnknownWallet(t *testing.T) {
	v, err := Open(testVaultPath(t), testSecret, logger.NewNop())
	require.NoError(t, err)

	err = v.WithSigner(42, func(*evm.Signer) error { return nil })
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestCreateWalletsRollsBackOnSaveFailure(t *testing.T) {
	path := testVaultPath(t)

	v, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)

	// A directory squatting on the vault path makes the save fail.
	require.NoError(t, os.Mkdir(path, 0750))
	_, err = v.CreateWallets(2)
	require.Error(t, err)
	assert.Equal(t, 0, v.Len())

	require.NoError(t, os.Remove(path))
	created, err := v.CreateWallets(1)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 0, created[0].ID)

	reopened, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, created, reopened.ListWallets())
}

func TestOpenWrongSecretFailsFast(t *testing.T) {
	path := testVaultPath(t)

	v, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)
	_, err = v.CreateWallets(1)
	require.NoError(t, err)

	_, err = Open(path, "not the secret", logger.NewNop())
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestOpenCorruptFile(t *testing.T) {
	path := testVaultPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not a vault"), 0600))

	_, err := Open(path, testSecret, logger.NewNop())
	assert.ErrorIs(t, err, ErrVaultCorrupt)
}

func TestOpenTamperedCiphertext(t *testing.T) {
	path := testVaultPath(t)

	v, err := Open(path, testSecret, logger.NewNop())
	require.NoError(t, err)
	_, err = v.CreateWallets(1)
	require.NoError(t, err)

	// Rewriting the stored address breaks the AEAD binding between the
	// ciphertext and its wallet address.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	env.Wallets[0].Address = "0x" + strings.Repeat("11", 20)
	tampered, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0600))

	_, err = Open(path, testSecret, logger.NewNop())
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

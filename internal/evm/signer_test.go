package evm

import (
	"fmt"
	"math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerRejectsNilKey(t *testing.T) {
	_, err := NewSigner(nil)
	assert.Error(t, err)
}

func TestSignerAddress(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer, err := NewSigner(pk)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(pk.PublicKey), signer.Address())
}

func TestSignTxRecoversSender(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewSigner(pk)
	require.NoError(t, err)

	chainID := big.NewInt(1234)
	to := signer.Address()
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    7,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})

	signedTx, err := signer.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := ethtypes.Sender(ethtypes.NewLondonSigner(chainID), signedTx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), sender)
}

func TestSignPersonalMessageRecoversAddress(t *testing.T) {
	pk, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewSigner(pk)
	require.NoError(t, err)

	message := []byte("login challenge 42")
	sig, err := signer.SignPersonalMessage(message)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	msgHash := crypto.Keccak256Hash(append([]byte(prefix), message...))

	recovery := make([]byte, len(sig))
	copy(recovery, sig)
	recovery[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(msgHash.Bytes(), recovery)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), crypto.PubkeyToAddress(*pub))
}

package ledger

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/config"
	"github.com/MoMannn/wanchain-example/internal/mutation"
	"github.com/MoMannn/wanchain-example/testutil"
)

const (
	testLedger   = "0xcc377f78e8cb954f9e1c5b3a36e6f3ed8c1ad2b0"
	testReceiver = "0xF9196F9f176fd2eF9243E8960817d5FbE63D79aa"
	testSchema   = "0xa65de9e6f5a6c3e1f2bca7a3b1c5c44f1ab0e4d0cb4b63c9c1a0c9a6e9b1d5f2"
	testImprint  = "0x1e0a9f1b6e0fb3c4bd3f2a1d6d6c0bdb61a8e1f41f8b6d8f1e8d8c3c7a8e2f11"
)

var testBytecode = []byte{0x60, 0x80, 0x60, 0x40, 0x52}

func setup(t *testing.T) (*testutil.FakeBackend, *chain.Provider) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := testutil.NewFakeBackend(1337)
	p, err := chain.NewProvider(backend, key, big.NewInt(1337), config.ChainConfig{}, zap.NewNop())
	require.NoError(t, err)
	return backend, p
}

func registerLedger(backend *testutil.FakeBackend, owner common.Address) {
	schema, _ := ParseBytes32(testSchema)
	imprint, _ := ParseBytes32(testImprint)
	backend.Register(common.HexToAddress(testLedger), ParsedABI, map[string]testutil.CallHandler{
		"name":        func([]interface{}) ([]interface{}, error) { return []interface{}{"Math Course Certificate"}, nil },
		"symbol":      func([]interface{}) ([]interface{}, error) { return []interface{}{"MCC"}, nil },
		"uriBase":     func([]interface{}) ([]interface{}, error) { return []interface{}{"https://example.com/assets/"}, nil },
		"schemaId":    func([]interface{}) ([]interface{}, error) { return []interface{}{schema}, nil },
		"totalSupply": func([]interface{}) ([]interface{}, error) { return []interface{}{big.NewInt(2)}, nil },
		"tokenURI": func(args []interface{}) ([]interface{}, error) {
			return []interface{}{"https://example.com/assets/" + args[0].(*big.Int).String()}, nil
		},
		"tokenImprint": func([]interface{}) ([]interface{}, error) { return []interface{}{imprint}, nil },
		"ownerOf":      func([]interface{}) ([]interface{}, error) { return []interface{}{owner}, nil },
		"balanceOf": func(args []interface{}) ([]interface{}, error) {
			if args[0].(common.Address) == owner {
				return []interface{}{big.NewInt(2)}, nil
			}
			return []interface{}{big.NewInt(0)}, nil
		},
		"supportsInterface": func(args []interface{}) ([]interface{}, error) {
			code := args[0].([4]byte)
			return []interface{}{code == capabilityCodes[DestroyAsset] || code == capabilityCodes[RevokeAsset]}, nil
		},
	})
}

func TestDeploy(t *testing.T) {
	backend, p := setup(t)

	m, err := Deploy(context.Background(), p, testBytecode, DeployRecipe{
		Name:         "Math Course Certificate",
		Symbol:       "MCC",
		URIBase:      "https://example.com/assets/",
		SchemaID:     testSchema,
		Capabilities: []Capability{DestroyAsset, RevokeAsset},
	})
	require.NoError(t, err)

	tx := backend.LastSent()
	require.NotNil(t, tx)
	assert.Nil(t, tx.To())
	assert.Equal(t, tx.Hash().Hex(), m.ID)
	assert.Equal(t, mutation.KindDeploy, m.Kind)
	assert.Equal(t, crypto.CreateAddress(p.Account(), 0), m.LedgerID)

	data := tx.Data()
	require.Greater(t, len(data), len(testBytecode))
	assert.Equal(t, testBytecode, data[:len(testBytecode)])

	args, err := ParsedABI.Constructor.Inputs.Unpack(data[len(testBytecode):])
	require.NoError(t, err)
	assert.Equal(t, "Math Course Certificate", args[0])
	assert.Equal(t, "MCC", args[1])
	assert.Equal(t, [][4]byte{capabilityCodes[DestroyAsset], capabilityCodes[RevokeAsset]}, args[4])
}

func TestDeployRejectsBadInput(t *testing.T) {
	_, p := setup(t)
	ctx := context.Background()

	_, err := Deploy(ctx, p, nil, DeployRecipe{SchemaID: testSchema})
	assert.ErrorIs(t, err, ErrBytecodeMissing)

	_, err = Deploy(ctx, p, testBytecode, DeployRecipe{SchemaID: "0x1234"})
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = Deploy(ctx, p, testBytecode, DeployRecipe{SchemaID: testSchema, Capabilities: []Capability{9}})
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestCreateAsset(t *testing.T) {
	backend, p := setup(t)
	registerLedger(backend, p.Account())

	l, err := GetInstance(p, testLedger)
	require.NoError(t, err)

	m, err := l.CreateAsset(context.Background(), AssetRecipe{ReceiverID: testReceiver, ID: "100", Imprint: testImprint})
	require.NoError(t, err)
	assert.Equal(t, mutation.KindCreateAsset, m.Kind)
	assert.Equal(t, common.HexToAddress(testLedger), m.LedgerID)
	assert.Equal(t, "100", m.AssetID)
	assert.Equal(t, []common.Address{common.HexToAddress(testLedger)}, m.Affects)

	method, args, err := testutil.DecodeInput(ParsedABI, backend.LastSent())
	require.NoError(t, err)
	assert.Equal(t, "create", method)
	assert.Equal(t, common.HexToAddress(testReceiver), args[0])
	assert.Equal(t, big.NewInt(100), args[1])
	imprint, _ := ParseBytes32(testImprint)
	assert.Equal(t, imprint, args[2])
}

func TestTransferAsset(t *testing.T) {
	backend, p := setup(t)
	registerLedger(backend, p.Account())
	l, err := GetInstance(p, testLedger)
	require.NoError(t, err)

	m, err := l.TransferAsset(context.Background(), TransferRecipe{ReceiverID: testReceiver, ID: "100"})
	require.NoError(t, err)
	assert.Equal(t, mutation.KindTransferAsset, m.Kind)

	method, args, err := testutil.DecodeInput(ParsedABI, backend.LastSent())
	require.NoError(t, err)
	assert.Equal(t, "safeTransferFrom", method)
	assert.Equal(t, p.Account(), args[0])
	assert.Equal(t, common.HexToAddress(testReceiver), args[1])
}

func TestWritesNeedSigningKey(t *testing.T) {
	backend := testutil.NewFakeBackend(1)
	p, err := chain.NewProvider(backend, nil, big.NewInt(1), config.ChainConfig{AccountID: testReceiver}, nil)
	require.NoError(t, err)
	registerLedger(backend, p.Account())
	l, err := GetInstance(p, testLedger)
	require.NoError(t, err)

	_, err = l.CreateAsset(context.Background(), AssetRecipe{ReceiverID: testReceiver, ID: "1", Imprint: testImprint})
	assert.ErrorIs(t, err, chain.ErrNoSigningKey)
	assert.Empty(t, backend.Sent())
}

func TestReads(t *testing.T) {
	backend, p := setup(t)
	registerLedger(backend, p.Account())
	l, err := GetInstance(p, testLedger)
	require.NoError(t, err)
	ctx := context.Background()

	info, err := l.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Info{
		Name:     "Math Course Certificate",
		Symbol:   "MCC",
		URIBase:  "https://example.com/assets/",
		SchemaID: testSchema,
		Supply:   "2",
	}, info)

	asset, err := l.GetAsset(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, &Asset{ID: "100", URI: "https://example.com/assets/100", Imprint: testImprint}, asset)

	owner, err := l.GetAssetAccount(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, p.Account().Hex(), owner)

	balance, err := l.GetBalance(ctx, p.Account().Hex())
	require.NoError(t, err)
	assert.Equal(t, "2", balance)

	balance, err = l.GetBalance(ctx, testReceiver)
	require.NoError(t, err)
	assert.Equal(t, "0", balance)

	caps, err := l.GetCapabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Capability{DestroyAsset, RevokeAsset}, caps)
}

func TestReadErrors(t *testing.T) {
	backend, p := setup(t)
	registerLedger(backend, p.Account())
	ctx := context.Background()

	_, err := GetInstance(p, "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	l, err := GetInstance(p, testLedger)
	require.NoError(t, err)

	_, err = l.GetAsset(ctx, "-1")
	assert.ErrorIs(t, err, ErrInvalidAssetID)
	_, err = l.GetBalance(ctx, "0x12")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	backend.CallErr = errors.New("connection refused")
	_, err = l.GetInfo(ctx)
	var ne *chain.NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "name", ne.Op)
	backend.CallErr = nil

	empty, err := GetInstance(p, "0x0000000000000000000000000000000000000abc")
	require.NoError(t, err)
	_, err = empty.GetInfo(ctx)
	assert.ErrorIs(t, err, bind.ErrNoCode)
}

func TestCallTimeout(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := testutil.NewFakeBackend(1337)
	p, err := chain.NewProvider(backend, key, big.NewInt(1337),
		config.ChainConfig{CallTimeout: 20 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	registerLedger(backend, p.Account())
	backend.Stall = true

	l, err := GetInstance(p, testLedger)
	require.NoError(t, err)

	start := time.Now()
	_, err = l.GetBalance(context.Background(), testReceiver)
	var ne *chain.NodeError
	require.ErrorAs(t, err, &ne)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = l.TransferAsset(context.Background(), TransferRecipe{ReceiverID: testReceiver, ID: "1"})
	require.ErrorAs(t, err, &ne)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, backend.Sent())
}

func TestParseAssetID(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"0", true},
		{"100", true},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", true},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639936", false},
		{"", false},
		{"-1", false},
		{"+1", false},
		{"0x10", false},
		{"1.5", false},
	}
	for _, tt := range tests {
		_, err := ParseAssetID(tt.in)
		if tt.valid {
			assert.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidAssetID, tt.in)
		}
	}
}

func TestParseBytes32(t *testing.T) {
	got, err := ParseBytes32(testSchema[2:])
	require.NoError(t, err)
	want, err := ParseBytes32(testSchema)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ParseBytes32("0x" + testSchema[3:])
	assert.ErrorIs(t, err, ErrInvalidHash)
	_, err = ParseBytes32("0xzz" + testSchema[4:])
	assert.ErrorIs(t, err, ErrInvalidHash)

	upper, err := ParseBytes32("0X" + testSchema[2:])
	require.NoError(t, err)
	assert.Equal(t, want, upper)
	_, err = ParseBytes32("0x0X" + testSchema[2:])
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestLoadBytecode(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "ledger.bin")
	require.NoError(t, os.WriteFile(path, []byte("6080604052\n"), 0o600))
	code, err := LoadBytecode(path)
	require.NoError(t, err)
	assert.Equal(t, testBytecode, code)

	_, err = LoadBytecode("")
	assert.ErrorIs(t, err, ErrBytecodeMissing)

	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, []byte("0xnothex"), 0o600))
	_, err = LoadBytecode(bad)
	assert.Error(t, err)
}

func TestCapabilityCodes(t *testing.T) {
	assert.True(t, UpdateAsset.Valid())
	assert.False(t, Capability(0).Valid())
	assert.Equal(t, []Capability{DestroyAsset, UpdateAsset, ToggleTransfers, RevokeAsset}, AllCapabilities())

	codes, err := InterfaceCodes([]Capability{ToggleTransfers})
	require.NoError(t, err)
	assert.Equal(t, [][4]byte{{0xbe, 0xdb, 0x86, 0xfb}}, codes)
}

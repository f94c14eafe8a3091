package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MoMannn/wanchain-example/api"
	problems "github.com/MoMannn/wanchain-example/common/errors"
	"github.com/MoMannn/wanchain-example/internal/chain"
	"github.com/MoMannn/wanchain-example/internal/gateway"
	"github.com/MoMannn/wanchain-example/internal/infrastructure/server"
	"github.com/MoMannn/wanchain-example/internal/ledger"
	"github.com/MoMannn/wanchain-example/internal/mutation"
)

const (
	testLedger   = "0xcc377f78e8cb954f9e1c5b3a36e6f3ed8c1ad2b0"
	testReceiver = "0xF9196F9f176fd2eF9243E8960817d5FbE63D79aa"
	testImprint  = "0x1e0a9f1b6e0fb3c4bd3f2a1d6d6c0bdb61a8e1f41f8b6d8f1e8d8c3c7a8e2f11"
	testSchema   = "0xa65de9e6f5a6c3e1f2bca7a3b1c5c44f1ab0e4d0cb4b63c9c1a0c9a6e9b1d5f2"
	testTx       = "0x5b1e2f86c3a44d8e7f9a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e"
)

// stubAssets records the last call and answers with canned values
type stubAssets struct {
	err error

	deployed    ledger.DeployRecipe
	minted      ledger.AssetRecipe
	transferred ledger.TransferRecipe
	ledgerID    string
	order       gateway.Order
	claim       string
	limit       int
}

func (s *stubAssets) mutation(kind mutation.Kind) (*mutation.Mutation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &mutation.Mutation{ID: testTx, Kind: kind}, nil
}

func (s *stubAssets) Deploy(_ context.Context, recipe ledger.DeployRecipe) (*mutation.Mutation, error) {
	s.deployed = recipe
	return s.mutation(mutation.KindDeploy)
}

func (s *stubAssets) Mint(_ context.Context, ledgerID string, recipe ledger.AssetRecipe) (*mutation.Mutation, error) {
	s.ledgerID, s.minted = ledgerID, recipe
	return s.mutation(mutation.KindCreateAsset)
}

func (s *stubAssets) Transfer(_ context.Context, ledgerID string, recipe ledger.TransferRecipe) (*mutation.Mutation, error) {
	s.ledgerID, s.transferred = ledgerID, recipe
	return s.mutation(mutation.KindTransferAsset)
}

func (s *stubAssets) LedgerInfo(_ context.Context, ledgerID string) (*ledger.Info, error) {
	s.ledgerID = ledgerID
	if s.err != nil {
		return nil, s.err
	}
	return &ledger.Info{Name: "Math Course Certificate", Symbol: "MCC", URIBase: "https://example.com/", SchemaID: testSchema, Supply: "2"}, nil
}

func (s *stubAssets) LedgerCapabilities(_ context.Context, ledgerID string) ([]ledger.Capability, error) {
	s.ledgerID = ledgerID
	if s.err != nil {
		return nil, s.err
	}
	return []ledger.Capability{ledger.DestroyAsset, ledger.RevokeAsset}, nil
}

func (s *stubAssets) AssetInfo(_ context.Context, ledgerID, assetID string) (*ledger.Asset, error) {
	s.ledgerID = ledgerID
	if s.err != nil {
		return nil, s.err
	}
	return &ledger.Asset{ID: assetID, URI: "https://example.com/" + assetID, Imprint: testImprint}, nil
}

func (s *stubAssets) AssetOwner(_ context.Context, ledgerID, _ string) (string, error) {
	s.ledgerID = ledgerID
	return testReceiver, s.err
}

func (s *stubAssets) Balance(_ context.Context, ledgerID, _ string) (string, error) {
	s.ledgerID = ledgerID
	return "3", s.err
}

func (s *stubAssets) CreateOrder(_ context.Context, order gateway.Order) (*gateway.Order, string, error) {
	s.order = order
	if s.err != nil {
		return nil, "", s.err
	}
	order.MakerID = testReceiver
	order.Seed = 1700000000000
	order.Expiration = 1700086400
	return &order, "0:0xabcdef", nil
}

func (s *stubAssets) PerformOrder(_ context.Context, order gateway.Order, claim string) (*mutation.Mutation, error) {
	s.order, s.claim = order, claim
	return s.mutation(mutation.KindPerformOrder)
}

func (s *stubAssets) Mutation(_ context.Context, id string) (*mutation.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &mutation.Record{ID: id, Kind: mutation.KindCreateAsset, Status: mutation.StatusCompleted, Confirmations: 1}, nil
}

func (s *stubAssets) Mutations(_ context.Context, ledgerID string, limit int) ([]mutation.Record, error) {
	s.ledgerID, s.limit = ledgerID, limit
	if s.err != nil {
		return nil, s.err
	}
	return []mutation.Record{{ID: testTx, Kind: mutation.KindDeploy, Status: mutation.StatusPending}}, nil
}

func setupRouter(assets api.AssetService, opts api.Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	health := server.NewHealthChecker(zap.NewNop(), 0)
	health.Register("node", server.PingerFunc(func(context.Context) error { return nil }))
	return api.NewServer(zap.NewNop(), assets, health, opts).Router()
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problems.ProblemDetails {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p problems.ProblemDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestDeployJSON(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doJSON(r, http.MethodPost, "/deploy", map[string]interface{}{
		"name":         "Math Course Certificate",
		"symbol":       "MCC",
		"uriBase":      "https://example.com/",
		"schemaId":     testSchema,
		"capabilities": []int{1, 4},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testTx, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "MCC", assets.deployed.Symbol)
	assert.Equal(t, []ledger.Capability{ledger.DestroyAsset, ledger.RevokeAsset}, assets.deployed.Capabilities)
}

func TestDeployForm(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doForm(r, "/deploy", url.Values{
		"name":         {"Math Course Certificate"},
		"symbol":       {"MCC"},
		"schemaId":     {testSchema},
		"capabilities": {"2", "3"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []ledger.Capability{ledger.UpdateAsset, ledger.ToggleTransfers}, assets.deployed.Capabilities)
}

func TestDeployRejectsUnknownCapability(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	w := doJSON(r, http.MethodPost, "/deploy", map[string]interface{}{
		"name":         "x",
		"symbol":       "X",
		"schemaId":     testSchema,
		"capabilities": []int{9},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, problems.TypeValidationError, p.Type)
	require.NotEmpty(t, p.Errors)
	assert.Equal(t, "capability", p.Errors[0].Code)
}

func TestMintForm(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doForm(r, "/mint", url.Values{
		"assetLedgerId": {testLedger},
		"receiverId":    {testReceiver},
		"id":            {"100"},
		"imprint":       {testImprint},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testTx, w.Body.String())
	assert.Equal(t, testLedger, assets.ledgerID)
	assert.Equal(t, ledger.AssetRecipe{ReceiverID: testReceiver, ID: "100", Imprint: testImprint}, assets.minted)
}

func TestMintValidation(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	w := doJSON(r, http.MethodPost, "/mint", map[string]string{
		"assetLedgerId": "not-an-address",
		"receiverId":    testReceiver,
		"id":            "-1",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	p := decodeProblem(t, w)
	fields := map[string]string{}
	for _, e := range p.Errors {
		fields[e.Field] = e.Code
	}
	assert.Equal(t, "eth_addr", fields["assetLedgerId"])
	assert.Equal(t, "uint256", fields["id"])
	assert.Equal(t, "required", fields["imprint"])
	assert.Equal(t, "/mint", p.Instance)
}

func TestMalformedBody(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	req := httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, problems.TypeValidationError, decodeProblem(t, w).Type)
}

func TestTransfer(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doJSON(r, http.MethodPost, "/transfer", map[string]string{
		"assetLedgerId": testLedger,
		"receiverId":    testReceiver,
		"id":            "100",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testTx, w.Body.String())
	assert.Equal(t, ledger.TransferRecipe{ReceiverID: testReceiver, ID: "100"}, assets.transferred)
}

func TestReads(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doGet(r, "/ledgerInfo?assetLedgerId="+testLedger)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info ledger.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "MCC", info.Symbol)
	assert.Equal(t, "2", info.Supply)

	w = doGet(r, "/assetInfo?assetLedgerId="+testLedger+"&id=100")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var asset ledger.Asset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &asset))
	assert.Equal(t, "100", asset.ID)
	assert.Equal(t, testImprint, asset.Imprint)

	w = doGet(r, "/assetOwner?assetLedgerId="+testLedger+"&id=100")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testReceiver, w.Body.String())

	w = doGet(r, "/balance?assetLedgerId="+testLedger+"&owner="+testReceiver)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "3", w.Body.String())

	w = doGet(r, "/ledgerCapabilities?assetLedgerId="+testLedger)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, "[1,4]", w.Body.String())
}

func TestReadValidation(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	tests := []string{
		"/ledgerInfo",
		"/assetInfo?assetLedgerId=" + testLedger,
		"/assetOwner?assetLedgerId=" + testLedger + "&id=abc",
		"/balance?assetLedgerId=" + testLedger + "&owner=bob",
		"/mutation?id=0x12",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			w := doGet(r, path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, problems.TypeValidationError, decodeProblem(t, w).Type)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"node failure", chain.WrapNode("eth_call", errors.New("connection refused")), http.StatusBadGateway, problems.TypeNodeError},
		{"no contract", chain.WrapNode("eth_call", bind.ErrNoCode), http.StatusNotFound, problems.TypeNotFound},
		{"bad asset id", fmt.Errorf("id: %w", ledger.ErrInvalidAssetID), http.StatusBadRequest, problems.TypeValidationError},
		{"no bytecode", ledger.ErrBytecodeMissing, http.StatusServiceUnavailable, problems.TypeServiceUnavailable},
		{"read only", chain.ErrNoSigningKey, http.StatusServiceUnavailable, problems.TypeServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, problems.TypeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(&stubAssets{err: tt.err}, api.Options{})
			w := doGet(r, "/ledgerInfo?assetLedgerId="+testLedger)
			require.Equal(t, tt.status, w.Code)
			p := decodeProblem(t, w)
			assert.Equal(t, tt.typ, p.Type)
			assert.NotEmpty(t, p.TraceID)
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	r := setupRouter(&stubAssets{err: errors.New("secret dsn leaked")}, api.Options{})
	w := doGet(r, "/balance?assetLedgerId="+testLedger+"&owner="+testReceiver)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret dsn")
}

func TestAtomicOrder(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doJSON(r, http.MethodPost, "/atomic-order", map[string]interface{}{
		"takerId": testReceiver,
		"actions": []map[string]string{{
			"kind":         "create_asset",
			"ledgerId":     testLedger,
			"receiverId":   testReceiver,
			"assetId":      "7",
			"assetImprint": testImprint,
		}},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "0:0xabcdef", resp.Claim)
	assert.Equal(t, testReceiver, resp.Order.MakerID)
	require.Len(t, resp.Order.Actions, 1)
	assert.Equal(t, gateway.ActionCreateAsset, resp.Order.Actions[0].Kind)
	assert.Equal(t, testReceiver, assets.order.TakerID)
}

func TestAtomicOrderValidation(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	w := doJSON(r, http.MethodPost, "/atomic-order", map[string]interface{}{
		"actions": []map[string]string{{"kind": "burn", "ledgerId": testLedger, "receiverId": testReceiver, "assetId": "1"}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/atomic-order", map[string]interface{}{"actions": []interface{}{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPerformOrder(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	body := map[string]interface{}{
		"order": map[string]interface{}{
			"makerId":    testReceiver,
			"seed":       1700000000000,
			"expiration": 1700086400,
			"actions": []map[string]string{{
				"kind":       "transfer_asset",
				"ledgerId":   testLedger,
				"receiverId": testReceiver,
				"assetId":    "7",
			}},
		},
		"claim": "0:0xabcdef",
	}
	w := doJSON(r, http.MethodPost, "/atomic-order/perform", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, testTx, w.Body.String())
	assert.Equal(t, "0:0xabcdef", assets.claim)
	assert.Equal(t, int64(1700086400), assets.order.Expiration)

	for err, status := range map[error]int{
		gateway.ErrNotTaker:     http.StatusForbidden,
		gateway.ErrExpired:      http.StatusConflict,
		gateway.ErrInvalidClaim: http.StatusBadRequest,
		gateway.ErrNotDeployed:  http.StatusServiceUnavailable,
	} {
		w := doJSON(setupRouter(&stubAssets{err: err}, api.Options{}), http.MethodPost, "/atomic-order/perform", body)
		assert.Equal(t, status, w.Code, err.Error())
	}
}

func TestMutationRoutes(t *testing.T) {
	assets := &stubAssets{}
	r := setupRouter(assets, api.Options{})

	w := doGet(r, "/mutation?id="+testTx)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec mutation.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, mutation.StatusCompleted, rec.Status)

	w = doGet(r, "/mutations?assetLedgerId="+testLedger+"&limit=10")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Items []mutation.Record `json:"items"`
		Meta  struct {
			Count int `json:"count"`
			Limit int `json:"limit"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Items, 1)
	assert.Equal(t, 1, list.Meta.Count)
	assert.Equal(t, 10, list.Meta.Limit)
	assert.Equal(t, 10, assets.limit)

	w = doGet(setupRouter(&stubAssets{err: mutation.ErrNotFound}, api.Options{}), "/mutation?id="+testTx)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{AllowOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/balance?assetLedgerId="+testLedger+"&owner="+testReceiver, nil)
	req.Header.Set("Origin", "http://wallet.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/balance?assetLedgerId="+testLedger+"&owner="+testReceiver, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/mint", nil)
	req.Header.Set("Origin", "http://wallet.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Requested-With, Content-Type")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	allowed := w.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "X-Requested-With")
	assert.Contains(t, allowed, "Content-Type")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	w := doGet(r, "/unknown")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, problems.TypeNotFound, decodeProblem(t, w).Type)

	w = doGet(r, "/mint")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, problems.TypeMethodNotAllowed, decodeProblem(t, w).Type)
}

func TestRequestIDEchoed(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	req := httptest.NewRequest(http.MethodGet, "/ledgerInfo?assetLedgerId="+testLedger, nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	w = doGet(r, "/ledgerInfo?assetLedgerId="+testLedger)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAuthGuardsWrites(t *testing.T) {
	secret := "s3cret"
	r := setupRouter(&stubAssets{}, api.Options{JWTSecret: secret})
	body := map[string]string{"assetLedgerId": testLedger, "receiverId": testReceiver, "id": "1"}

	w := doJSON(r, http.MethodPost, "/transfer", body)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, problems.TypeUnauthorized, decodeProblem(t, w).Type)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/transfer", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Reads stay open
	w = doGet(r, "/ledgerInfo?assetLedgerId="+testLedger)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := setupRouter(&stubAssets{}, api.Options{})

	w := doGet(r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	w = doGet(r, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	doGet(r, "/balance?assetLedgerId="+testLedger+"&owner="+testReceiver)
	w = doGet(r, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

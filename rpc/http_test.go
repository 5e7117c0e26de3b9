package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"lockyard/crypto"
	"lockyard/native/lockup"
	"lockyard/native/token"
	"lockyard/storage"
)

const day = 86_400

type rpcHarness struct {
	server  *Server
	handler http.Handler
	engine  *lockup.Engine
	deposit *token.Ledger
	reward  *token.Ledger
	admin   crypto.Address
	custody crypto.Address
	now     int64
}

func testAddr(fill byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, 20))
}

func newHarness(t *testing.T, funded bool) *rpcHarness {
	t.Helper()
	t.Setenv("LOCKYARD_RPC_TOKEN", "secret")

	state := storage.NewLedgerState(storage.NewMemDB())
	admin := testAddr(0xAD)
	custody := testAddr(0xCC)

	deposit := token.NewLedger("DEP", admin)
	deposit.SetState(state)
	reward := token.NewLedger("RWD", admin)
	reward.SetState(state)

	params := lockup.Params{
		ProgramEnd:      uint64(1_700_000_000 + 200*day),
		RewardPoolSize:  big.NewInt(1_000_000),
		AnnualYieldRate: 10,
		VestingDuration: uint64(100 * day),
		Admin:           admin,
	}
	engine, err := lockup.NewEngine(custody, reward, params)
	require.NoError(t, err)
	engine.SetState(state)

	h := &rpcHarness{
		engine:  engine,
		deposit: deposit,
		reward:  reward,
		admin:   admin,
		custody: custody,
		now:     1_700_000_000,
	}
	engine.SetNowFunc(func() int64 { return h.now })
	if funded {
		engine.SetDepositToken(deposit)
	}

	h.server = NewServer(engine, map[string]*token.Ledger{"DEP": deposit, "RWD": reward}, nil)
	h.handler = h.server.Router()
	return h
}

func (h *rpcHarness) call(t *testing.T, method string, params interface{}, auth string) (int, RPCResponse) {
	t.Helper()
	envelope := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		envelope["params"] = []interface{}{params}
	}
	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected RPC error: %+v", resp.Error)
	out, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %T", resp.Result)
	return out
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, true)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestInvalidEnvelope(t *testing.T) {
	h := newHarness(t, true)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(map[string]interface{}{"jsonrpc": "1.0", "id": 1, "method": "lockup_getProgram"})
	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	status, resp := h.call(t, "lockup_doesNotExist", map[string]string{}, "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	// Methods taking params insist on exactly one params object.
	status, resp = h.call(t, "lockup_getStake", nil, "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestLockUnlockFlow(t *testing.T) {
	h := newHarness(t, true)
	alice := testAddr(0x01)
	require.NoError(t, h.deposit.Mint(h.admin, alice, big.NewInt(10_000)))
	require.NoError(t, h.deposit.Approve(alice, h.custody, big.NewInt(10_000)))

	status, resp := h.call(t, "lockup_lock", map[string]interface{}{
		"from":     alice.String(),
		"amount":   "1000",
		"duration": 90 * day,
	}, "secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resultMap(t, resp)["locked"])

	status, resp = h.call(t, "lockup_getStake", map[string]string{"addr": alice.String()}, "")
	require.Equal(t, http.StatusOK, status)
	stake := resultMap(t, resp)
	require.Equal(t, "1000", stake["amount"])
	require.EqualValues(t, 90*day, stake["lockDuration"])

	status, resp = h.call(t, "token_balanceOf", map[string]string{
		"token": "dep", "addr": h.custody.String(),
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1000", resultMap(t, resp)["balance"])

	status, resp = h.call(t, "lockup_getRewardState", map[string]string{"addr": alice.String()}, "")
	require.Equal(t, http.StatusOK, status)
	rewardState := resultMap(t, resp)
	require.NotEqual(t, "0", rewardState["points"])
	require.Equal(t, rewardState["points"], rewardState["totalPoints"])

	// Early unlock reverses the optimistic credit.
	h.now += 10 * day
	status, resp = h.call(t, "lockup_unlock", map[string]string{"from": alice.String()}, "secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resultMap(t, resp)["unlocked"])

	status, resp = h.call(t, "lockup_getRewardState", map[string]string{"addr": alice.String()}, "")
	require.Equal(t, http.StatusOK, status)
	rewardState = resultMap(t, resp)
	require.Equal(t, "0", rewardState["points"])
	require.Equal(t, "0", rewardState["totalPoints"])

	// A domain rejection surfaces as a server error, not a transport one.
	status, resp = h.call(t, "lockup_unlock", map[string]string{"from": alice.String()}, "secret")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestClaimAndReleaseFlow(t *testing.T) {
	h := newHarness(t, true)
	alice := testAddr(0x01)
	require.NoError(t, h.deposit.Mint(h.admin, alice, big.NewInt(1_000)))
	require.NoError(t, h.deposit.Approve(alice, h.custody, big.NewInt(1_000)))
	require.NoError(t, h.reward.Mint(h.admin, h.custody, big.NewInt(1_000_000)))

	status, _ := h.call(t, "lockup_lock", map[string]interface{}{
		"from": alice.String(), "amount": "1000", "duration": 90 * day,
	}, "secret")
	require.Equal(t, http.StatusOK, status)

	h.now += 90 * day
	status, _ = h.call(t, "lockup_unlock", map[string]string{"from": alice.String()}, "secret")
	require.Equal(t, http.StatusOK, status)

	h.now = 1_700_000_000 + 200*day + 1
	status, resp := h.call(t, "lockup_claimRewards", map[string]string{"from": alice.String()}, "secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "1000000", resultMap(t, resp)["granted"])

	h.now += 50 * day
	status, resp = h.call(t, "lockup_getVesting", map[string]string{"addr": alice.String()}, "")
	require.Equal(t, http.StatusOK, status)
	vesting := resultMap(t, resp)
	require.Equal(t, "1000000", vesting["granted"])
	require.Equal(t, "500000", vesting["releasable"])

	status, resp = h.call(t, "lockup_release", map[string]string{"from": alice.String()}, "secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "500000", resultMap(t, resp)["released"])

	status, resp = h.call(t, "token_balanceOf", map[string]string{
		"token": "RWD", "addr": alice.String(),
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "500000", resultMap(t, resp)["balance"])
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	h := newHarness(t, true)
	alice := testAddr(0x01)
	mint := map[string]string{
		"token": "DEP", "from": h.admin.String(), "to": alice.String(), "amount": "100",
	}

	status, resp := h.call(t, "token_mint", mint, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = h.call(t, "token_mint", mint, "wrong")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = h.call(t, "token_mint", mint, "secret")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resultMap(t, resp)["minted"])

	// Minting by anyone but the ledger authority still fails downstream.
	mint["from"] = alice.String()
	status, resp = h.call(t, "token_mint", mint, "secret")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	h := newHarness(t, true)
	alice := testAddr(0x01)
	bob := testAddr(0x02)
	require.NoError(t, h.deposit.Mint(h.admin, alice, big.NewInt(10_000)))
	require.NoError(t, h.deposit.Approve(alice, h.custody, big.NewInt(10_000)))

	mutations := map[string]interface{}{
		"lockup_lock":         map[string]interface{}{"from": alice.String(), "amount": "1000", "duration": 90 * day},
		"lockup_unlock":       map[string]string{"from": alice.String()},
		"lockup_claimRewards": map[string]string{"from": alice.String()},
		"lockup_release":      map[string]string{"from": alice.String()},
		"token_transfer":      map[string]string{"token": "DEP", "from": alice.String(), "to": bob.String(), "amount": "1"},
		"token_approve":       map[string]string{"token": "DEP", "owner": alice.String(), "spender": bob.String(), "amount": "1"},
	}
	for method, params := range mutations {
		status, resp := h.call(t, method, params, "")
		require.Equal(t, http.StatusUnauthorized, status, method)
		require.Equal(t, codeUnauthorized, resp.Error.Code, method)
	}

	// Nothing moved: the rejected lock left no stake, the rejected transfer
	// left the balance whole.
	status, resp := h.call(t, "lockup_getStake", map[string]string{"addr": alice.String()}, "")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Nil(t, resp.Result)

	status, resp = h.call(t, "token_balanceOf", map[string]string{"token": "DEP", "addr": alice.String()}, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "10000", resultMap(t, resp)["balance"])

	// Read-side queries never need the token.
	status, resp = h.call(t, "lockup_getProgram", nil, "")
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestFundProgramOverRPC(t *testing.T) {
	h := newHarness(t, false)
	treasury := testAddr(0x77)
	require.NoError(t, h.reward.Mint(h.admin, treasury, big.NewInt(1_000_000)))
	require.NoError(t, h.reward.Approve(treasury, h.custody, big.NewInt(1_000_000)))

	fund := map[string]string{
		"from": h.admin.String(), "depositToken": "DEP", "source": treasury.String(),
	}
	status, resp := h.call(t, "lockup_fundProgram", fund, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = h.call(t, "lockup_fundProgram", fund, "secret")
	require.Equal(t, http.StatusOK, status)
	funded := resultMap(t, resp)
	require.Equal(t, true, funded["funded"])
	require.Equal(t, "DEP", funded["depositToken"])

	status, resp = h.call(t, "lockup_getProgram", nil, "")
	require.Equal(t, http.StatusOK, status)
	program := resultMap(t, resp)
	require.Equal(t, true, program["funded"])
	require.Equal(t, "DEP", program["depositToken"])
	require.Equal(t, "1000000", program["rewardPoolSize"])

	status, resp = h.call(t, "lockup_fundProgram", fund, "secret")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestRateLimitPerSource(t *testing.T) {
	h := newHarness(t, true)

	limited := false
	for i := 0; i < requestBurst+5; i++ {
		status, resp := h.call(t, "lockup_getProgram", nil, "")
		if status == http.StatusTooManyRequests {
			require.Equal(t, codeRateLimited, resp.Error.Code)
			limited = true
			break
		}
		require.Equal(t, http.StatusOK, status, "request %d", i)
	}
	require.True(t, limited, "burst above the limiter must be rejected")
}

func TestModuleOf(t *testing.T) {
	require.Equal(t, "lockup", moduleOf("lockup_lock"))
	require.Equal(t, "token", moduleOf("token_mint"))
	require.Equal(t, "unknown", moduleOf("ping"))
}

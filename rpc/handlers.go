package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"lockyard/crypto"
	"lockyard/native/token"
)

// mutatingMethods enumerates every method that changes ledger state. All of
// them require the bearer token; the read-side queries stay open.
var mutatingMethods = map[string]bool{
	"lockup_lock":         true,
	"lockup_unlock":       true,
	"lockup_claimRewards": true,
	"lockup_release":      true,
	"lockup_fundProgram":  true,
	"token_approve":       true,
	"token_transfer":      true,
	"token_mint":          true,
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) int {
	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "bearer token required")
		return http.StatusUnauthorized
	}
	switch req.Method {
	case "lockup_lock":
		return s.handleLock(w, req)
	case "lockup_unlock":
		return s.handleUnlock(w, req)
	case "lockup_claimRewards":
		return s.handleClaimRewards(w, req)
	case "lockup_release":
		return s.handleRelease(w, req)
	case "lockup_fundProgram":
		return s.handleFundProgram(w, req)
	case "lockup_getStake":
		return s.handleGetStake(w, req)
	case "lockup_getRewardState":
		return s.handleGetRewardState(w, req)
	case "lockup_getVesting":
		return s.handleGetVesting(w, req)
	case "lockup_getProgram":
		return s.handleGetProgram(w, req)
	case "token_balanceOf":
		return s.handleTokenBalance(w, req)
	case "token_allowance":
		return s.handleTokenAllowance(w, req)
	case "token_approve":
		return s.handleTokenApprove(w, req)
	case "token_transfer":
		return s.handleTokenTransfer(w, req)
	case "token_mint":
		return s.handleTokenMint(w, req)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
		return http.StatusBadRequest
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one params object, got %d", len(req.Params))
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func (s *Server) tokenBySymbol(symbol string) (*token.Ledger, error) {
	ledger, ok := s.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, fmt.Errorf("unknown token %q", symbol)
	}
	return ledger, nil
}

func invalidParams(w http.ResponseWriter, id interface{}, err error) int {
	writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error())
	return http.StatusBadRequest
}

func operationFailed(w http.ResponseWriter, id interface{}, err error) int {
	writeError(w, http.StatusBadRequest, id, codeServerError, err.Error())
	return http.StatusBadRequest
}

// --- lockup handlers ---

type lockParams struct {
	From     string `json:"from"`
	Amount   string `json:"amount"`
	Duration uint64 `json:"duration"`
}

func (s *Server) handleLock(w http.ResponseWriter, req *RPCRequest) int {
	var params lockParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := s.engine.Lock(caller, amount, params.Duration); err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"locked": true})
	return http.StatusOK
}

type accountParams struct {
	From string `json:"from"`
}

func (s *Server) handleUnlock(w http.ResponseWriter, req *RPCRequest) int {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := s.engine.Unlock(caller); err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"unlocked": true})
	return http.StatusOK
}

func (s *Server) handleClaimRewards(w http.ResponseWriter, req *RPCRequest) int {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	granted, err := s.engine.ClaimRewards(caller)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"granted": granted.String()})
	return http.StatusOK
}

func (s *Server) handleRelease(w http.ResponseWriter, req *RPCRequest) int {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	released, err := s.engine.Release(caller)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"released": released.String()})
	return http.StatusOK
}

type fundParams struct {
	From         string `json:"from"`
	DepositToken string `json:"depositToken"`
	Source       string `json:"source"`
}

func (s *Server) handleFundProgram(w http.ResponseWriter, req *RPCRequest) int {
	var params fundParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	source, err := crypto.DecodeAddress(params.Source)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	deposit, err := s.tokenBySymbol(params.DepositToken)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := s.engine.FundProgram(caller, deposit, source); err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"funded": true, "depositToken": deposit.Symbol()})
	return http.StatusOK
}

type addrParams struct {
	Addr string `json:"addr"`
}

func (s *Server) handleGetStake(w http.ResponseWriter, req *RPCRequest) int {
	var params addrParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	addr, err := crypto.DecodeAddress(params.Addr)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	record, exists, err := s.engine.Stake(addr)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	if !exists {
		writeResult(w, req.ID, nil)
		return http.StatusOK
	}
	writeResult(w, req.ID, map[string]interface{}{
		"amount":               record.Amount.String(),
		"lockDuration":         record.LockDuration,
		"startTime":            record.StartTime,
		"expectedRewardPoints": record.ExpectedRewardPoints.String(),
		"maturesAt":            record.MaturesAt(),
	})
	return http.StatusOK
}

func (s *Server) handleGetRewardState(w http.ResponseWriter, req *RPCRequest) int {
	var params addrParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	addr, err := crypto.DecodeAddress(params.Addr)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	points, err := s.engine.RewardPoints(addr)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	total, err := s.engine.TotalRewardPoints()
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{
		"points":      points.String(),
		"totalPoints": total.String(),
	})
	return http.StatusOK
}

func (s *Server) handleGetVesting(w http.ResponseWriter, req *RPCRequest) int {
	var params addrParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	addr, err := crypto.DecodeAddress(params.Addr)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	granted, released, releasable, err := s.engine.VestingStatus(addr)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{
		"granted":    granted.String(),
		"released":   released.String(),
		"releasable": releasable.String(),
	})
	return http.StatusOK
}

func (s *Server) handleGetProgram(w http.ResponseWriter, req *RPCRequest) int {
	params := s.engine.Params()
	depositSymbol, funded, err := s.engine.DepositTokenSymbol()
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{
		"programEnd":      params.ProgramEnd,
		"rewardPoolSize":  params.RewardPoolSize.String(),
		"annualYieldRate": params.AnnualYieldRate,
		"vestingDuration": params.VestingDuration,
		"admin":           params.Admin.String(),
		"funded":          funded,
		"depositToken":    depositSymbol,
	})
	return http.StatusOK
}

// --- token handlers ---

type tokenAddrParams struct {
	Token string `json:"token"`
	Addr  string `json:"addr"`
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, req *RPCRequest) int {
	var params tokenAddrParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	ledger, err := s.tokenBySymbol(params.Token)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	addr, err := crypto.DecodeAddress(params.Addr)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	balance, err := ledger.BalanceOf(addr)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"balance": balance.String()})
	return http.StatusOK
}

type allowanceParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

func (s *Server) handleTokenAllowance(w http.ResponseWriter, req *RPCRequest) int {
	var params allowanceParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	ledger, err := s.tokenBySymbol(params.Token)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	spender, err := crypto.DecodeAddress(params.Spender)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	allowance, err := ledger.Allowance(owner, spender)
	if err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"allowance": allowance.String()})
	return http.StatusOK
}

type approveParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, req *RPCRequest) int {
	var params approveParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	ledger, err := s.tokenBySymbol(params.Token)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	spender, err := crypto.DecodeAddress(params.Spender)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := ledger.Approve(owner, spender, amount); err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"approved": true})
	return http.StatusOK
}

type transferParams struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, req *RPCRequest) int {
	var params transferParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	ledger, err := s.tokenBySymbol(params.Token)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	from, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	to, err := crypto.DecodeAddress(params.To)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := ledger.Transfer(from, to, amount); err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"transferred": true})
	return http.StatusOK
}

type mintParams struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTokenMint(w http.ResponseWriter, req *RPCRequest) int {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		return invalidParams(w, req.ID, err)
	}
	ledger, err := s.tokenBySymbol(params.Token)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	caller, err := crypto.DecodeAddress(params.From)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	to, err := crypto.DecodeAddress(params.To)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return invalidParams(w, req.ID, err)
	}
	if err := ledger.Mint(caller, to, amount); err != nil {
		return operationFailed(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]interface{}{"minted": true})
	return http.StatusOK
}

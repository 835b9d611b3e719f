package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"promoledger/core"
	"promoledger/core/types"
	"promoledger/crypto"
)

func singleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "exactly one parameter required"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter", Data: err.Error()}
	}
	return nil
}

func addressParam(req *RPCRequest) (crypto.Address, *RPCError) {
	var raw string
	if rpcErr := singleParam(req, &raw); rpcErr != nil {
		return crypto.Address{}, rpcErr
	}
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, &RPCError{Code: codeInvalidParams, Message: "invalid address", Data: err.Error()}
	}
	return addr, nil
}

func (s *Server) handleSubmitInstruction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var ix types.Instruction
	if rpcErr := singleParam(req, &ix); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, "instruction parameter required", rpcErr.Data)
		return
	}
	receipt, err := s.node.Submit(r.Context(), &ix)
	switch {
	case err == nil:
		writeResult(w, req.ID, receipt)
	case errors.Is(err, core.ErrDuplicateInstruction):
		writeError(w, http.StatusConflict, req.ID, codeDuplicateTx, "instruction has already been applied", err.Error())
	case errors.Is(err, types.ErrMissingSignature), errors.Is(err, types.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid instruction signature", err.Error())
	case errors.Is(err, types.ErrInvalidPayload), errors.Is(err, core.ErrUnknownInstruction), errors.Is(err, core.ErrNilInstruction):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid instruction", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to apply instruction", err.Error())
	}
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var hash string
	if rpcErr := singleParam(req, &hash); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, "receipt hash required", rpcErr.Data)
		return
	}
	receipt, err := s.node.Receipt(r.Context(), hash)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

type eventsParams struct {
	Type    string `json:"type"`
	AfterID int64  `json:"afterId"`
	Limit   int    `json:"limit"`
}

type eventsResult struct {
	Events []eventResult `json:"events"`
	NextID int64         `json:"nextId"`
}

type eventResult struct {
	ID          int64             `json:"id"`
	ReceiptHash string            `json:"receiptHash"`
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	AppliedAt   int64             `json:"appliedAt"`
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params eventsParams
	if len(req.Params) > 0 {
		if rpcErr := singleParam(req, &params); rpcErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
			return
		}
	}
	if params.Limit < 0 || params.Limit > 1000 || params.AfterID < 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be within [0,1000] and afterId non-negative", nil)
		return
	}
	stored, err := s.node.Events(r.Context(), strings.TrimSpace(params.Type), params.AfterID, params.Limit)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	result := eventsResult{Events: make([]eventResult, 0, len(stored)), NextID: params.AfterID}
	for _, evt := range stored {
		result.Events = append(result.Events, eventResult{
			ID:          evt.ID,
			ReceiptHash: evt.ReceiptHash,
			Type:        evt.Type,
			Attributes:  evt.Attributes,
			AppliedAt:   evt.AppliedAt,
		})
		result.NextID = evt.ID
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	view, err := s.node.Account(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	policy, err := s.node.Policy()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, policy)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	campaign, err := s.node.Campaign(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, campaign)
}

func (s *Server) handleGetVault(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	vault, err := s.node.Vault(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vault)
}

func (s *Server) handleGetCoupon(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := addressParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	coupon, err := s.node.Coupon(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, coupon)
}

type deriveParams struct {
	Merchant    string `json:"merchant"`
	CampaignID  uint64 `json:"campaignId"`
	CouponIndex uint64 `json:"couponIndex"`
}

func (s *Server) handleDeriveAddresses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params deriveParams
	if rpcErr := singleParam(req, &params); rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	merchant, err := crypto.ParseAddress(strings.TrimSpace(params.Merchant))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid merchant address", err.Error())
		return
	}
	writeResult(w, req.ID, core.DeriveAddresses(merchant, params.CampaignID, params.CouponIndex))
}

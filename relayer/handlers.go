package relayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eventlog"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

// statusForError maps the token failure classes onto HTTP status codes.
// Unknown errors are internal and must not leak their text to clients.
func statusForError(err error) int {
	switch {
	case errors.Is(err, token.ErrSuspended):
		return http.StatusServiceUnavailable
	case errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrUnauthorized),
		errors.Is(err, ErrStaleAdminSignature):
		return http.StatusForbidden
	case errors.Is(err, token.ErrInvalidRecipient),
		errors.Is(err, token.ErrMalformedSignature):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrSupplyOverflow),
		errors.Is(err, token.ErrAlreadyPaused),
		errors.Is(err, token.ErrNotPaused),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (server *Server) writeDomainError(w http.ResponseWriter, err error, context string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		server.logger.Error().Err(err).Msg(context)
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (server *Server) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	response := PingResponse{Status: "ok"}
	json.NewEncoder(w).Encode(response)
}

func (server *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Name:                  server.token.Name(),
		Symbol:                server.token.Symbol(),
		Decimals:              server.token.Decimals(),
		ChainID:               server.encoder.ChainID().String(),
		VerifyingContract:     server.encoder.VerifyingContract().Hex(),
		Owner:                 server.token.CurrentOwner().Hex(),
		Paused:                server.token.IsPaused(),
		TotalSupply:           server.token.TotalSupply().ToBig().String(),
		TotalSupplyWholeUnits: server.token.TotalSupplyWholeUnits().ToBig().String(),
		DomainSeparator:       hexutil.Encode(server.encoder.DomainSeparator()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (server *Server) AddressHandler(w http.ResponseWriter, r *http.Request) {
	response := AddressResponse{
		Address: server.token.CurrentOwner().Hex(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func accountFromQuery(r *http.Request) (common.Address, error) {
	account := r.URL.Query().Get("account")
	if !common.IsHexAddress(account) {
		return common.Address{}, fmt.Errorf("error parsing account: %q", account)
	}
	return common.HexToAddress(account), nil
}

func (server *Server) NonceHandler(w http.ResponseWriter, r *http.Request) {
	account, parseErr := accountFromQuery(r)
	if parseErr != nil {
		http.Error(w, parseErr.Error(), http.StatusBadRequest)
		return
	}

	response := NonceResponse{
		Account:     account.Hex(),
		Nonce:       strconv.FormatUint(server.authorizer.Nonce(account), 10),
		PermitNonce: strconv.FormatUint(server.token.PermitNonce(account), 10),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (server *Server) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	account, parseErr := accountFromQuery(r)
	if parseErr != nil {
		http.Error(w, parseErr.Error(), http.StatusBadRequest)
		return
	}

	response := BalanceResponse{
		Account: account.Hex(),
		Balance: server.token.BalanceOf(account).ToBig().String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (server *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 1 {
			http.Error(w, fmt.Sprintf("error parsing limit: %q", raw), http.StatusBadRequest)
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = parsed
	}

	response := EventsResponse{Events: []eventlog.Record{}}
	if server.journal != nil {
		records, recentErr := server.journal.Recent(r.Context(), limit)
		if recentErr != nil {
			server.logger.Error().Err(recentErr).Msg("reading journal failed")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if records != nil {
			response.Events = records
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (server *Server) HashHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var requestParameters HashRequest
	bodyDecoder := json.NewDecoder(r.Body)
	decodeErr := bodyDecoder.Decode(&requestParameters)
	if decodeErr != nil {
		http.Error(w, "Error decoding request", http.StatusBadRequest)
		return
	}

	parameters := &mintParameters{}
	parseErr := parameters.ParseHashRequest(&requestParameters)
	if parseErr != nil {
		http.Error(w, parseErr.Error(), http.StatusBadRequest)
		return
	}

	messageHash, nonce, hashErr := server.authorizer.MintDigest(parameters.To, parameters.Amount, parameters.Deadline)
	if hashErr != nil {
		server.logger.Error().Err(hashErr).Msg("building mint digest failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := HashResponse{
		Request:     &requestParameters,
		Nonce:       strconv.FormatUint(nonce, 10),
		MessageHash: hexutil.Encode(messageHash),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (server *Server) MintHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var requestParameters MintRequest
	bodyDecoder := json.NewDecoder(r.Body)
	decodeErr := bodyDecoder.Decode(&requestParameters)
	if decodeErr != nil {
		http.Error(w, "Error decoding request", http.StatusBadRequest)
		return
	}

	parameters := &mintParameters{}
	parseErr := parameters.ParseMintRequest(&requestParameters)
	if parseErr != nil {
		http.Error(w, parseErr.Error(), http.StatusBadRequest)
		return
	}

	nonce := server.authorizer.Nonce(parameters.To)
	authorizationErr := server.authorizer.AuthorizeAndMint(parameters.To, parameters.Amount, parameters.Deadline, parameters.Signature)
	if authorizationErr != nil {
		server.writeDomainError(w, authorizationErr, "mint authorization failed")
		return
	}

	response := MintResponse{
		Request:     &requestParameters,
		Nonce:       strconv.FormatUint(nonce, 10),
		Balance:     server.token.BalanceOf(parameters.To).ToBig().String(),
		TotalSupply: server.token.TotalSupply().ToBig().String(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (server *Server) AdminMintHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var requestParameters AdminRequest
	bodyDecoder := json.NewDecoder(r.Body)
	decodeErr := bodyDecoder.Decode(&requestParameters)
	if decodeErr != nil {
		http.Error(w, "Error decoding request", http.StatusBadRequest)
		return
	}

	if !common.IsHexAddress(requestParameters.To) {
		http.Error(w, fmt.Sprintf("error parsing to: %s", requestParameters.To), http.StatusBadRequest)
		return
	}
	to := common.HexToAddress(requestParameters.To)

	amount, amountErr := parseAmount(requestParameters.Amount)
	if amountErr != nil {
		http.Error(w, fmt.Sprintf("error parsing amount: %v", amountErr), http.StatusBadRequest)
		return
	}

	signature, signatureErr := decodeSignature(requestParameters.Signature)
	if signatureErr != nil {
		http.Error(w, signatureErr.Error(), http.StatusBadRequest)
		return
	}

	signer, verifyErr := server.verifyAdmin(AdminOpMint, to, amount, requestParameters.IssuedAt, signature)
	if verifyErr != nil {
		server.writeDomainError(w, verifyErr, "admin mint verification failed")
		return
	}

	if mintErr := server.token.OwnerMint(signer, to, amount); mintErr != nil {
		server.writeDomainError(w, mintErr, "admin mint failed")
		return
	}

	server.writeAdminResponse(w, AdminOpMint, signer)
}

func (server *Server) AdminPauseHandler(w http.ResponseWriter, r *http.Request) {
	server.adminToggleHandler(w, r, AdminOpPause)
}

func (server *Server) AdminUnpauseHandler(w http.ResponseWriter, r *http.Request) {
	server.adminToggleHandler(w, r, AdminOpUnpause)
}

func (server *Server) adminToggleHandler(w http.ResponseWriter, r *http.Request, op string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var requestParameters AdminRequest
	bodyDecoder := json.NewDecoder(r.Body)
	decodeErr := bodyDecoder.Decode(&requestParameters)
	if decodeErr != nil {
		http.Error(w, "Error decoding request", http.StatusBadRequest)
		return
	}

	signature, signatureErr := decodeSignature(requestParameters.Signature)
	if signatureErr != nil {
		http.Error(w, signatureErr.Error(), http.StatusBadRequest)
		return
	}

	signer, verifyErr := server.verifyAdmin(op, ZERO_ADDRESS, nil, requestParameters.IssuedAt, signature)
	if verifyErr != nil {
		server.writeDomainError(w, verifyErr, "admin verification failed")
		return
	}

	var opErr error
	switch op {
	case AdminOpPause:
		opErr = server.token.Pause(signer)
	case AdminOpUnpause:
		opErr = server.token.Unpause(signer)
	}
	if opErr != nil {
		server.writeDomainError(w, opErr, "admin operation failed")
		return
	}

	server.writeAdminResponse(w, op, signer)
}

func (server *Server) writeAdminResponse(w http.ResponseWriter, op string, signer common.Address) {
	response := AdminResponse{
		Operation: op,
		Applied:   true,
		Signer:    signer.Hex(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

package relayer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eventlog"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/mintauth"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

const (
	serverTestChainID  = uint64(2718)
	serverTestContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	serverTestOwnerKey    = "8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a"
	serverTestStrangerKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"
)

type serverFixture struct {
	key     *ecdsa.PrivateKey
	owner   common.Address
	encoder *eip712.Encoder
	token   *token.Token
	auth    *mintauth.Authorizer
	server  *Server
	handler http.Handler
}

func newServerFixture(t *testing.T, journal *eventlog.Journal) *serverFixture {
	t.Helper()

	key, keyErr := crypto.HexToECDSA(serverTestOwnerKey)
	require.NoError(t, keyErr)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	encoder, encoderErr := eip712.NewEncoder(serverTestChainID, common.HexToAddress(serverTestContract))
	require.NoError(t, encoderErr)

	ledger := token.New(owner, encoder)
	if journal != nil {
		ledger.SetEventSink(func(event token.Event) {
			if appendErr := journal.Append(context.Background(), event); appendErr != nil {
				t.Errorf("appending event to journal: %v", appendErr)
			}
		})
	}

	auth := mintauth.New(encoder, ledger, ledger)
	server := NewServer(encoder, ledger, auth, journal, []string{"*"}, zerolog.Nop())

	return &serverFixture{
		key:     key,
		owner:   owner,
		encoder: encoder,
		token:   ledger,
		auth:    auth,
		server:  server,
		handler: server.Handler(),
	}
}

func (fixture *serverFixture) signMint(t *testing.T, key *ecdsa.PrivateKey, to common.Address, amount *uint256.Int, nonce, deadline uint64) []byte {
	t.Helper()
	digest, digestErr := fixture.encoder.MintDigest(to, amount, nonce, deadline)
	require.NoError(t, digestErr)
	signature, signErr := crypto.Sign(digest, key)
	require.NoError(t, signErr)
	return signature
}

func (fixture *serverFixture) signAdmin(t *testing.T, key *ecdsa.PrivateKey, op string, to common.Address, amount *uint256.Int, issuedAt int64) string {
	t.Helper()
	message := AdminMessage(op, to, amount, issuedAt, fixture.encoder.ChainID(), fixture.encoder.VerifyingContract())
	signature, signErr := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, signErr)
	return hexutil.Encode(signature)
}

func doGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, path, nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func doPost(t *testing.T, handler http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, marshalErr := json.Marshal(payload)
	require.NoError(t, marshalErr)
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(target))
}

func futureDeadline() uint64 {
	return uint64(time.Now().Add(time.Hour).Unix())
}

func TestPingHandler(t *testing.T) {
	fixture := newServerFixture(t, nil)

	recorder := doGet(t, fixture.handler, "/ping")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response PingResponse
	decodeBody(t, recorder, &response)
	assert.Equal(t, "ok", response.Status)
}

func TestStatusHandler(t *testing.T) {
	fixture := newServerFixture(t, nil)

	recorder := doGet(t, fixture.handler, "/status")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response StatusResponse
	decodeBody(t, recorder, &response)

	assert.Equal(t, "Rain Cloud Protocol", response.Name)
	assert.Equal(t, "RAIN", response.Symbol)
	assert.Equal(t, uint8(18), response.Decimals)
	assert.Equal(t, strconv.FormatUint(serverTestChainID, 10), response.ChainID)
	assert.Equal(t, common.HexToAddress(serverTestContract).Hex(), response.VerifyingContract)
	assert.Equal(t, fixture.owner.Hex(), response.Owner)
	assert.False(t, response.Paused)
	assert.Equal(t, "0", response.TotalSupply)
	assert.Equal(t, "0", response.TotalSupplyWholeUnits)
	assert.Len(t, response.DomainSeparator, 66)
	assert.Equal(t, hexutil.Encode(fixture.encoder.DomainSeparator()), response.DomainSeparator)
}

func TestAddressHandler(t *testing.T) {
	fixture := newServerFixture(t, nil)

	recorder := doGet(t, fixture.handler, "/address")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response AddressResponse
	decodeBody(t, recorder, &response)
	assert.Equal(t, fixture.owner.Hex(), response.Address)
}

func TestNonceAndBalanceHandlers(t *testing.T) {
	fixture := newServerFixture(t, nil)
	recipient := common.HexToAddress("0x000000000000000000000000000000000000bEEF")

	recorder := doGet(t, fixture.handler, "/nonce?account="+recipient.Hex())
	require.Equal(t, http.StatusOK, recorder.Code)

	var nonceResponse NonceResponse
	decodeBody(t, recorder, &nonceResponse)
	assert.Equal(t, recipient.Hex(), nonceResponse.Account)
	assert.Equal(t, "0", nonceResponse.Nonce)
	assert.Equal(t, "0", nonceResponse.PermitNonce)

	recorder = doGet(t, fixture.handler, "/balance?account="+recipient.Hex())
	require.Equal(t, http.StatusOK, recorder.Code)

	var balanceResponse BalanceResponse
	decodeBody(t, recorder, &balanceResponse)
	assert.Equal(t, "0", balanceResponse.Balance)

	recorder = doGet(t, fixture.handler, "/nonce?account=notanaddress")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doGet(t, fixture.handler, "/balance")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestMintLifecycleOverHTTP(t *testing.T) {
	fixture := newServerFixture(t, nil)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	deadline := futureDeadline()
	deadlineText := strconv.FormatUint(deadline, 10)

	hashRecorder := doPost(t, fixture.handler, "/hash", HashRequest{
		To:       recipient.Hex(),
		Amount:   "100",
		Deadline: deadlineText,
	})
	require.Equal(t, http.StatusOK, hashRecorder.Code)

	var hashResponse HashResponse
	decodeBody(t, hashRecorder, &hashResponse)
	assert.Equal(t, "0", hashResponse.Nonce)

	digest, digestErr := hexutil.Decode(hashResponse.MessageHash)
	require.NoError(t, digestErr)
	signature, signErr := crypto.Sign(digest, fixture.key)
	require.NoError(t, signErr)

	mintRequest := MintRequest{
		To:        recipient.Hex(),
		Amount:    "100",
		Deadline:  deadlineText,
		Signature: hexutil.Encode(signature),
	}
	mintRecorder := doPost(t, fixture.handler, "/mint", mintRequest)
	require.Equal(t, http.StatusOK, mintRecorder.Code)

	var mintResponse MintResponse
	decodeBody(t, mintRecorder, &mintResponse)
	assert.Equal(t, "0", mintResponse.Nonce)
	assert.Equal(t, "100", mintResponse.Balance)
	assert.Equal(t, "100", mintResponse.TotalSupply)

	// Replaying the exact same request must be refused with no state change.
	replayRecorder := doPost(t, fixture.handler, "/mint", mintRequest)
	assert.Equal(t, http.StatusForbidden, replayRecorder.Code)
	assert.True(t, fixture.token.BalanceOf(recipient).Eq(uint256.NewInt(100)))
	assert.Equal(t, uint64(1), fixture.auth.Nonce(recipient))

	nonceRecorder := doGet(t, fixture.handler, "/nonce?account="+recipient.Hex())
	var nonceResponse NonceResponse
	decodeBody(t, nonceRecorder, &nonceResponse)
	assert.Equal(t, "1", nonceResponse.Nonce)

	secondSignature := fixture.signMint(t, fixture.key, recipient, uint256.NewInt(50), 1, deadline)
	secondRecorder := doPost(t, fixture.handler, "/mint", MintRequest{
		To:        recipient.Hex(),
		Amount:    "50",
		Deadline:  deadlineText,
		Signature: hexutil.Encode(secondSignature),
	})
	require.Equal(t, http.StatusOK, secondRecorder.Code)

	var secondResponse MintResponse
	decodeBody(t, secondRecorder, &secondResponse)
	assert.Equal(t, "1", secondResponse.Nonce)
	assert.Equal(t, "150", secondResponse.Balance)
	assert.Equal(t, uint64(2), fixture.auth.Nonce(recipient))
}

func TestMintHandlerStatusMapping(t *testing.T) {
	fixture := newServerFixture(t, nil)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000A2")
	deadline := futureDeadline()
	deadlineText := strconv.FormatUint(deadline, 10)

	t.Run("expired deadline", func(t *testing.T) {
		signature := fixture.signMint(t, fixture.key, recipient, uint256.NewInt(10), 0, 1)
		recorder := doPost(t, fixture.handler, "/mint", MintRequest{
			To:        recipient.Hex(),
			Amount:    "10",
			Deadline:  "1",
			Signature: hexutil.Encode(signature),
		})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("zero recipient", func(t *testing.T) {
		signature := fixture.signMint(t, fixture.key, ZERO_ADDRESS, uint256.NewInt(10), 0, deadline)
		recorder := doPost(t, fixture.handler, "/mint", MintRequest{
			To:        ZERO_ADDRESS.Hex(),
			Amount:    "10",
			Deadline:  deadlineText,
			Signature: hexutil.Encode(signature),
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("unrecoverable signature", func(t *testing.T) {
		garbage := bytes.Repeat([]byte{0x07}, eip712.SignatureLength)
		recorder := doPost(t, fixture.handler, "/mint", MintRequest{
			To:        recipient.Hex(),
			Amount:    "10",
			Deadline:  deadlineText,
			Signature: hexutil.Encode(garbage),
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("truncated signature", func(t *testing.T) {
		recorder := doPost(t, fixture.handler, "/mint", MintRequest{
			To:        recipient.Hex(),
			Amount:    "10",
			Deadline:  deadlineText,
			Signature: "0x0102",
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("stranger signature", func(t *testing.T) {
		strangerKey, keyErr := crypto.HexToECDSA(serverTestStrangerKey)
		require.NoError(t, keyErr)
		signature := fixture.signMint(t, strangerKey, recipient, uint256.NewInt(10), 0, deadline)
		recorder := doPost(t, fixture.handler, "/mint", MintRequest{
			To:        recipient.Hex(),
			Amount:    "10",
			Deadline:  deadlineText,
			Signature: hexutil.Encode(signature),
		})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("suspended token", func(t *testing.T) {
		require.NoError(t, fixture.token.Pause(fixture.owner))
		defer func() {
			require.NoError(t, fixture.token.Unpause(fixture.owner))
		}()

		signature := fixture.signMint(t, fixture.key, recipient, uint256.NewInt(10), 0, deadline)
		recorder := doPost(t, fixture.handler, "/mint", MintRequest{
			To:        recipient.Hex(),
			Amount:    "10",
			Deadline:  deadlineText,
			Signature: hexutil.Encode(signature),
		})
		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	})

	assert.True(t, fixture.token.TotalSupply().IsZero())
	assert.Equal(t, uint64(0), fixture.auth.Nonce(recipient))
}

func TestMintHandlerRequestValidation(t *testing.T) {
	fixture := newServerFixture(t, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/mint", bytes.NewReader([]byte("{not json")))
	fixture.handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doPost(t, fixture.handler, "/mint", MintRequest{
		To:       "nothex",
		Amount:   "10",
		Deadline: "100",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doPost(t, fixture.handler, "/mint", MintRequest{
		To:       "0x00000000000000000000000000000000000000A3",
		Amount:   "-5",
		Deadline: "100",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// 2^256 does not fit the amount type.
	recorder = doPost(t, fixture.handler, "/mint", MintRequest{
		To:       "0x00000000000000000000000000000000000000A3",
		Amount:   "0x10000000000000000000000000000000000000000000000000000000000000000",
		Deadline: "100",
	})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doGet(t, fixture.handler, "/mint")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)

	recorder = doGet(t, fixture.handler, "/hash")
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestAdminMintHandler(t *testing.T) {
	fixture := newServerFixture(t, nil)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000B1")
	amount := uint256.NewInt(777)
	issuedAt := time.Now().Unix()

	recorder := doPost(t, fixture.handler, "/admin/mint", AdminRequest{
		To:        recipient.Hex(),
		Amount:    "777",
		IssuedAt:  issuedAt,
		Signature: fixture.signAdmin(t, fixture.key, AdminOpMint, recipient, amount, issuedAt),
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var response AdminResponse
	decodeBody(t, recorder, &response)
	assert.Equal(t, AdminOpMint, response.Operation)
	assert.True(t, response.Applied)
	assert.Equal(t, fixture.owner.Hex(), response.Signer)
	assert.True(t, fixture.token.BalanceOf(recipient).Eq(amount))
}

func TestAdminHandlerRejections(t *testing.T) {
	fixture := newServerFixture(t, nil)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000B2")
	amount := uint256.NewInt(5)

	strangerKey, keyErr := crypto.HexToECDSA(serverTestStrangerKey)
	require.NoError(t, keyErr)

	t.Run("stranger signer", func(t *testing.T) {
		issuedAt := time.Now().Unix()
		recorder := doPost(t, fixture.handler, "/admin/mint", AdminRequest{
			To:        recipient.Hex(),
			Amount:    "5",
			IssuedAt:  issuedAt,
			Signature: fixture.signAdmin(t, strangerKey, AdminOpMint, recipient, amount, issuedAt),
		})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("stale signature", func(t *testing.T) {
		issuedAt := time.Now().Add(-time.Hour).Unix()
		recorder := doPost(t, fixture.handler, "/admin/mint", AdminRequest{
			To:        recipient.Hex(),
			Amount:    "5",
			IssuedAt:  issuedAt,
			Signature: fixture.signAdmin(t, fixture.key, AdminOpMint, recipient, amount, issuedAt),
		})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("signature for other operation", func(t *testing.T) {
		issuedAt := time.Now().Unix()
		recorder := doPost(t, fixture.handler, "/admin/mint", AdminRequest{
			To:        recipient.Hex(),
			Amount:    "5",
			IssuedAt:  issuedAt,
			Signature: fixture.signAdmin(t, fixture.key, AdminOpPause, ZERO_ADDRESS, nil, issuedAt),
		})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		recorder := doGet(t, fixture.handler, "/admin/pause")
		assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
	})

	assert.True(t, fixture.token.BalanceOf(recipient).IsZero())
}

func TestAdminPauseUnpauseHandlers(t *testing.T) {
	fixture := newServerFixture(t, nil)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000B3")
	deadline := futureDeadline()

	issuedAt := time.Now().Unix()
	pauseRecorder := doPost(t, fixture.handler, "/admin/pause", AdminRequest{
		IssuedAt:  issuedAt,
		Signature: fixture.signAdmin(t, fixture.key, AdminOpPause, ZERO_ADDRESS, nil, issuedAt),
	})
	require.Equal(t, http.StatusOK, pauseRecorder.Code)
	assert.True(t, fixture.token.IsPaused())

	// Pausing twice conflicts with the current state.
	issuedAt = time.Now().Unix()
	repauseRecorder := doPost(t, fixture.handler, "/admin/pause", AdminRequest{
		IssuedAt:  issuedAt,
		Signature: fixture.signAdmin(t, fixture.key, AdminOpPause, ZERO_ADDRESS, nil, issuedAt),
	})
	assert.Equal(t, http.StatusConflict, repauseRecorder.Code)

	signature := fixture.signMint(t, fixture.key, recipient, uint256.NewInt(10), 0, deadline)
	mintRecorder := doPost(t, fixture.handler, "/mint", MintRequest{
		To:        recipient.Hex(),
		Amount:    "10",
		Deadline:  strconv.FormatUint(deadline, 10),
		Signature: hexutil.Encode(signature),
	})
	assert.Equal(t, http.StatusServiceUnavailable, mintRecorder.Code)

	issuedAt = time.Now().Unix()
	unpauseRecorder := doPost(t, fixture.handler, "/admin/unpause", AdminRequest{
		IssuedAt:  issuedAt,
		Signature: fixture.signAdmin(t, fixture.key, AdminOpUnpause, ZERO_ADDRESS, nil, issuedAt),
	})
	require.Equal(t, http.StatusOK, unpauseRecorder.Code)
	assert.False(t, fixture.token.IsPaused())

	retryRecorder := doPost(t, fixture.handler, "/mint", MintRequest{
		To:        recipient.Hex(),
		Amount:    "10",
		Deadline:  strconv.FormatUint(deadline, 10),
		Signature: hexutil.Encode(signature),
	})
	assert.Equal(t, http.StatusOK, retryRecorder.Code)
}

func TestEventsHandler(t *testing.T) {
	journal, openErr := eventlog.Open(":memory:")
	require.NoError(t, openErr)
	defer journal.Close()

	fixture := newServerFixture(t, journal)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000C1")

	require.NoError(t, fixture.token.OwnerMint(fixture.owner, recipient, uint256.NewInt(42)))

	recorder := doGet(t, fixture.handler, "/events")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response EventsResponse
	decodeBody(t, recorder, &response)
	require.Len(t, response.Events, 1)
	assert.Equal(t, string(token.EventMint), response.Events[0].Kind)
	assert.Equal(t, recipient.Hex(), response.Events[0].Recipient)
	assert.Equal(t, "42", response.Events[0].Amount)

	recorder = doGet(t, fixture.handler, "/events?limit=0")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	recorder = doGet(t, fixture.handler, "/events?limit=oops")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestEventsHandlerWithoutJournal(t *testing.T) {
	fixture := newServerFixture(t, nil)

	recorder := doGet(t, fixture.handler, "/events")
	require.Equal(t, http.StatusOK, recorder.Code)

	var response EventsResponse
	decodeBody(t, recorder, &response)
	assert.NotNil(t, response.Events)
	assert.Len(t, response.Events, 0)
}

func TestCORSMiddleware(t *testing.T) {
	fixture := newServerFixture(t, nil)

	request := httptest.NewRequest(http.MethodOptions, "/mint", nil)
	request.Header.Set("Origin", "https://dapp.example.com")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "https://dapp.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))

	request = httptest.NewRequest(http.MethodGet, "/ping", nil)
	request.Header.Set("Origin", "https://dapp.example.com")
	recorder = httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "https://dapp.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))

	restricted := newServerFixture(t, nil)
	restricted.server.corsOrigins = []string{"https://allowed.example.com"}
	restrictedHandler := restricted.server.Handler()

	request = httptest.NewRequest(http.MethodGet, "/ping", nil)
	request.Header.Set("Origin", "https://other.example.com")
	recorder = httptest.NewRecorder()
	restrictedHandler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

package operations

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/signing"
)

// stubGateway records the last request and replays a canned submission.
type stubGateway struct {
	handle *domain.SubmissionHandle
	err    error
	calls  int
	last   signing.Request
}

func (s *stubGateway) Submit(_ context.Context, req signing.Request) (*domain.SubmissionHandle, error) {
	s.calls++
	s.last = req
	return s.handle, s.err
}

// stubTracker replays a canned outcome.
type stubTracker struct {
	outcome domain.TransactionOutcome
	err     error
	calls   int
}

func (s *stubTracker) Track(_ context.Context, txID string) (domain.TransactionOutcome, error) {
	s.calls++
	s.outcome.TxID = txID
	return s.outcome, s.err
}

// staticSession is a fixed account name.
type staticSession string

func (s staticSession) Account() string { return string(s) }

func newTestFacade(gateway *stubGateway, tr *stubTracker, account string) *Facade {
	return New(gateway, tr, staticSession(account), "ssc-mainnet1", log.New(io.Discard, "", 0))
}

func confirmedSetup() (*stubGateway, *stubTracker) {
	gateway := &stubGateway{
		handle: &domain.SubmissionHandle{ID: "tx-1", SubmittedAt: time.Unix(1_500_000_000, 0)},
	}
	tr := &stubTracker{outcome: domain.TransactionOutcome{Status: domain.OutcomeConfirmed}}
	return gateway, tr
}

func payloadJSON(t *testing.T, req signing.Request) string {
	t.Helper()
	raw, err := json.Marshal(req.Payload)
	require.NoError(t, err)
	return string(raw)
}

func TestTransfer_Confirmed(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	res, err := facade.Transfer(context.Background(), "ENG", "aggroed", decimal.RequireFromString("10.5"), "rent")
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, "tx-1", res.TxID)
	assert.Equal(t, "Sent 10.5 ENG to aggroed", res.Message)

	assert.Equal(t, signing.AuthorityActive, gateway.last.Authority)
	assert.Equal(t, "ssc-mainnet1", gateway.last.ID)
	assert.JSONEq(t, `{
		"contractName": "tokens",
		"contractAction": "transfer",
		"contractPayload": {"symbol": "ENG", "to": "aggroed", "quantity": "10.5", "memo": "rent"}
	}`, payloadJSON(t, gateway.last))
}

func TestTransfer_FailureCarriesReason(t *testing.T) {
	gateway, _ := confirmedSetup()
	tr := &stubTracker{outcome: domain.TransactionOutcome{
		Status: domain.OutcomeFailed,
		Reason: "insufficient balance",
	}}
	facade := newTestFacade(gateway, tr, "egg")

	res, err := facade.Transfer(context.Background(), "ENG", "aggroed", decimal.NewFromInt(7), "")
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Contains(t, res.Message, "insufficient balance")
	assert.Contains(t, res.Message, "7 ENG")
}

func TestOperations_NotLoggedIn(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "")

	_, err := facade.Stake(context.Background(), "ENG", decimal.NewFromInt(1))
	require.ErrorIs(t, err, signing.ErrNotLoggedIn)
	assert.Zero(t, gateway.calls, "no identity must mean no submission")
	assert.Zero(t, tr.calls)
}

func TestOperations_RejectionSkipsTracking(t *testing.T) {
	gateway := &stubGateway{err: signing.ErrRejected}
	tr := &stubTracker{}
	facade := newTestFacade(gateway, tr, "egg")

	_, err := facade.Stake(context.Background(), "ENG", decimal.NewFromInt(1))
	require.ErrorIs(t, err, signing.ErrRejected)
	assert.Zero(t, tr.calls, "a rejected submit must not be tracked")
}

func TestStake_Payload(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	res, err := facade.Stake(context.Background(), "PAL", decimal.RequireFromString("3.142"))
	require.NoError(t, err)
	assert.Equal(t, "Successfully staked 3.142 PAL", res.Message)

	assert.JSONEq(t, `{
		"contractName": "tokens",
		"contractAction": "stake",
		"contractPayload": {"symbol": "PAL", "quantity": "3.142"}
	}`, payloadJSON(t, gateway.last))
}

func TestStake_InvalidQuantity(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	_, err := facade.Stake(context.Background(), "PAL", decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, gateway.calls)
}

func TestUnstake_NotFoundOutcome(t *testing.T) {
	gateway, _ := confirmedSetup()
	tr := &stubTracker{outcome: domain.TransactionOutcome{
		Status: domain.OutcomeNotFound,
		Reason: "Transaction not found.",
	}}
	facade := newTestFacade(gateway, tr, "egg")

	res, err := facade.Unstake(context.Background(), "PAL", decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Contains(t, res.Message, "Transaction not found.")
}

func TestCancelUnstake_Payload(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	_, err := facade.CancelUnstake(context.Background(), "deadbeef")
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"contractName": "tokens",
		"contractAction": "cancelUnstake",
		"contractPayload": {"txID": "deadbeef"}
	}`, payloadJSON(t, gateway.last))
}

func TestEnableStaking_Payload(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	res, err := facade.EnableStaking(context.Background(), "EGG", 7, 4)
	require.NoError(t, err)
	assert.Equal(t, "Token staking enabled", res.Message)

	assert.JSONEq(t, `{
		"contractName": "tokens",
		"contractAction": "enableStaking",
		"contractPayload": {"symbol": "EGG", "unstakingCooldown": 7, "numberTransactions": 4}
	}`, payloadJSON(t, gateway.last))
}

func TestClaim_PostingAuthorityAndScaledAmount(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	res, err := facade.Claim(context.Background(), "pal", 12345, 3)
	require.NoError(t, err)

	assert.Equal(t, signing.AuthorityPosting, gateway.last.Authority)
	assert.Equal(t, "scot_claim_token", gateway.last.ID)
	assert.Equal(t, "Claim 12.345 PAL Tokens", gateway.last.Prompt)
	assert.Equal(t, "Claimed 12.345 PAL tokens", res.Message)

	assert.JSONEq(t, `{"symbol": "pal"}`, payloadJSON(t, gateway.last))
}

func TestIssue_Payload(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	_, err := facade.Issue(context.Background(), "EGG", "aggroed", decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"contractName": "tokens",
		"contractAction": "issue",
		"contractPayload": {"symbol": "EGG", "to": "aggroed", "quantity": "100"}
	}`, payloadJSON(t, gateway.last))
}

func TestNFTOperations_Payloads(t *testing.T) {
	gateway, tr := confirmedSetup()
	facade := newTestFacade(gateway, tr, "egg")

	_, err := facade.EnableMarket(context.Background(), "CITY")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"contractName": "nftmarket",
		"contractAction": "enableMarket",
		"contractPayload": {"symbol": "CITY"}
	}`, payloadJSON(t, gateway.last))

	_, err = facade.SetGroupBy(context.Background(), "CITY", []string{"edition", "type"})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"contractName": "nft",
		"contractAction": "setGroupBy",
		"contractPayload": {"symbol": "CITY", "properties": ["edition", "type"]}
	}`, payloadJSON(t, gateway.last))
}

func TestCanIssueAndEnableMarket(t *testing.T) {
	token := domain.Token{
		Symbol:                    "CITY",
		AuthorizedIssuingAccounts: []string{"egg", "aggroed"},
	}

	assert.True(t, CanIssue(token, "egg"))
	assert.False(t, CanIssue(token, "mallory"))

	assert.True(t, CanEnableMarket(token, "egg"))

	token.GroupBy = []string{"edition"}
	assert.False(t, CanEnableMarket(token, "egg"), "market setup is one-shot once groupBy is set")
}

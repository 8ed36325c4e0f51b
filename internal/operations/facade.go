// Package operations composes the signing gateway and the transaction
// tracker into the client's state-changing operations. Every operation
// follows the same shape: require an identity, build the contract payload,
// submit, track, and map the outcome to a user-facing result.
package operations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/steem-driver/steem-engine-dex/internal/domain"
	"github.com/steem-driver/steem-engine-dex/internal/signing"
)

// ErrInvalidQuantity is returned for zero or negative operation amounts.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// Session supplies the active account name. The facade treats it as a
// read-only external fact.
type Session interface {
	Account() string
}

// Tracker resolves a submission id to its terminal outcome.
type Tracker interface {
	Track(ctx context.Context, txID string) (domain.TransactionOutcome, error)
}

// Result is the user-facing outcome of one operation.
type Result struct {
	TxID    string
	Outcome domain.TransactionOutcome
	Message string
}

// OK reports whether the operation was confirmed on the side chain.
func (r *Result) OK() bool {
	return r.Outcome.Confirmed()
}

// Facade runs domain operations against the side chain.
type Facade struct {
	gateway signing.Gateway
	tracker Tracker
	session Session
	chainID string
	logger  *log.Logger
}

// New creates a Facade. chainID is the custom-json operation id carrying
// contract actions.
func New(gateway signing.Gateway, tracker Tracker, session Session, chainID string, logger *log.Logger) *Facade {
	if logger == nil {
		logger = log.Default()
	}
	return &Facade{
		gateway: gateway,
		tracker: tracker,
		session: session,
		chainID: chainID,
		logger:  logger,
	}
}

// account returns the active account, or ErrNotLoggedIn when no identity is
// present. Callers receiving ErrNotLoggedIn must force re-authentication.
func (f *Facade) account() (string, error) {
	name := f.session.Account()
	if name == "" {
		return "", signing.ErrNotLoggedIn
	}
	return name, nil
}

// run submits a signing request and tracks it to a terminal outcome. Signing
// failures abort before tracking; only the outcome read is ever retried,
// never the submit.
func (f *Facade) run(ctx context.Context, req signing.Request, successMsg, failurePrefix string) (*Result, error) {
	handle, err := f.gateway.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome, err := f.tracker.Track(ctx, handle.ID)
	if err != nil {
		return nil, err
	}

	res := &Result{TxID: handle.ID, Outcome: outcome}
	if outcome.Confirmed() {
		res.Message = successMsg
	} else {
		res.Message = failurePrefix + ": " + outcome.Reason
	}

	f.logger.Printf("operations: %s %s -> %s", req.Prompt, handle.ID, outcome.Status)
	return res, nil
}

// contractRequest builds a signing request for a side-chain contract action.
func (f *Facade) contractRequest(account string, authority signing.Authority, contract, action string, payload any, prompt string) signing.Request {
	return signing.Request{
		Account:   account,
		Authority: authority,
		ID:        f.chainID,
		Payload: signing.Payload{
			ContractName:    contract,
			ContractAction:  action,
			ContractPayload: payload,
		},
		Prompt: prompt,
	}
}

type transferPayload struct {
	Symbol   string `json:"symbol"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

// Transfer sends quantity of symbol to another account.
func (f *Facade) Transfer(ctx context.Context, symbol, to string, quantity decimal.Decimal, memo string) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}

	req := f.contractRequest(account, signing.AuthorityActive, "tokens", "transfer", transferPayload{
		Symbol:   symbol,
		To:       to,
		Quantity: quantity.String(),
		Memo:     memo,
	}, "Token Transfer: "+symbol)

	return f.run(ctx, req,
		fmt.Sprintf("Sent %s %s to %s", quantity, symbol, to),
		fmt.Sprintf("An error occurred attempting to transfer %s %s to %s", quantity, symbol, to))
}

type stakePayload struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
}

// Stake locks quantity of symbol into stake.
func (f *Facade) Stake(ctx context.Context, symbol string, quantity decimal.Decimal) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}

	req := f.contractRequest(account, signing.AuthorityActive, "tokens", "stake", stakePayload{
		Symbol:   symbol,
		Quantity: quantity.String(),
	}, "Stake Token")

	return f.run(ctx, req,
		fmt.Sprintf("Successfully staked %s %s", quantity, symbol),
		"An error occurred attempting to stake tokens")
}

// Unstake begins releasing quantity of symbol from stake.
func (f *Facade) Unstake(ctx context.Context, symbol string, quantity decimal.Decimal) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}

	req := f.contractRequest(account, signing.AuthorityActive, "tokens", "unstake", stakePayload{
		Symbol:   symbol,
		Quantity: quantity.String(),
	}, "Unstake Tokens")

	return f.run(ctx, req,
		fmt.Sprintf("Successfully unstaked %s %s", quantity, symbol),
		"An error occurred attempting to unstake tokens")
}

type cancelUnstakePayload struct {
	TxID string `json:"txID"`
}

// CancelUnstake cancels an in-progress unstake by its transaction id.
func (f *Facade) CancelUnstake(ctx context.Context, txID string) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}

	req := f.contractRequest(account, signing.AuthorityActive, "tokens", "cancelUnstake", cancelUnstakePayload{
		TxID: txID,
	}, "Cancel Unstake Tokens")

	return f.run(ctx, req,
		"Token unstaking cancelled",
		"An error occurred attempting to cancel unstaking")
}

type enableStakingPayload struct {
	Symbol             string `json:"symbol"`
	UnstakingCooldown  int    `json:"unstakingCooldown"`
	NumberTransactions int    `json:"numberTransactions"`
}

// EnableStaking turns on staking for a token the account issues.
func (f *Facade) EnableStaking(ctx context.Context, symbol string, unstakingCooldown, numberTransactions int) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}

	req := f.contractRequest(account, signing.AuthorityActive, "tokens", "enableStaking", enableStakingPayload{
		Symbol:             symbol,
		UnstakingCooldown:  unstakingCooldown,
		NumberTransactions: numberTransactions,
	}, "Enable Token Staking")

	return f.run(ctx, req,
		"Token staking enabled",
		"An error occurred attempting to enable staking on your token")
}

type claimPayload struct {
	Symbol string `json:"symbol"`
}

// claimOperationID is the custom-json id of the reward claim operation; it
// rides outside the contract chain id.
const claimOperationID = "scot_claim_token"

// Claim claims the pending staking reward for symbol. pendingToken is the
// raw integer amount from the reward service; precision scales it into the
// human-readable claimable amount.
func (f *Facade) Claim(ctx context.Context, symbol string, pendingToken int64, precision int) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}

	claimable := decimal.New(pendingToken, -int32(precision))
	display := strings.ToUpper(symbol)

	req := signing.Request{
		Account:   account,
		Authority: signing.AuthorityPosting,
		ID:        claimOperationID,
		Payload:   claimPayload{Symbol: symbol},
		Prompt:    fmt.Sprintf("Claim %s %s Tokens", claimable, display),
	}

	return f.run(ctx, req,
		fmt.Sprintf("Claimed %s %s tokens", claimable, display),
		fmt.Sprintf("An error occurred attempting to claim %s tokens", display))
}

type issuePayload struct {
	Symbol   string `json:"symbol"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
}

// Issue mints quantity of symbol to another account. Only accounts listed in
// the token's authorized issuers will be accepted by the chain.
func (f *Facade) Issue(ctx context.Context, symbol, to string, quantity decimal.Decimal) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}

	req := f.contractRequest(account, signing.AuthorityActive, "tokens", "issue", issuePayload{
		Symbol:   symbol,
		To:       to,
		Quantity: quantity.String(),
	}, "Issue Token")

	return f.run(ctx, req,
		fmt.Sprintf("Issued %s %s to %s", quantity, symbol, to),
		fmt.Sprintf("An error occurred attempting to issue %s", symbol))
}

type enableMarketPayload struct {
	Symbol string `json:"symbol"`
}

// EnableMarket opens the NFT market for a token the account issues.
func (f *Facade) EnableMarket(ctx context.Context, symbol string) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}

	req := f.contractRequest(account, signing.AuthorityActive, "nftmarket", "enableMarket", enableMarketPayload{
		Symbol: symbol,
	}, "Enable Market")

	return f.run(ctx, req,
		"Market enabled",
		"An error occurred attempting to enable the market")
}

type setGroupByPayload struct {
	Symbol     string   `json:"symbol"`
	Properties []string `json:"properties"`
}

// SetGroupBy sets the NFT grouping properties for a token the account
// issues. The chain accepts this only once per token.
func (f *Facade) SetGroupBy(ctx context.Context, symbol string, properties []string) (*Result, error) {
	account, err := f.account()
	if err != nil {
		return nil, err
	}

	req := f.contractRequest(account, signing.AuthorityActive, "nft", "setGroupBy", setGroupByPayload{
		Symbol:     symbol,
		Properties: properties,
	}, "Set Group By Properties")

	return f.run(ctx, req,
		"Group by properties set",
		"An error occurred attempting to set group by properties")
}

package operations

import "github.com/steem-driver/steem-engine-dex/internal/domain"

// CanIssue reports whether account is among the token's authorized issuers.
func CanIssue(token domain.Token, account string) bool {
	for _, a := range token.AuthorizedIssuingAccounts {
		if a == account {
			return true
		}
	}
	return false
}

// CanEnableMarket reports whether account may open the NFT market for the
// token: it must be an authorized issuer and the grouping properties must
// not be set yet.
func CanEnableMarket(token domain.Token, account string) bool {
	return CanIssue(token, account) && len(token.GroupBy) == 0
}

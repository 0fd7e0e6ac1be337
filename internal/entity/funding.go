package entity

// FundingAccount - a token account able to post a stake.
type FundingAccount struct {
	Address Address `json:"address"`
	Mint    Address `json:"mint"`
	Owner   Address `json:"owner"`
	Balance uint64  `json:"balance"`
}

type MintInfo struct {
	Address  Address `json:"address"`
	Decimals uint8   `json:"decimals"`
	Supply   uint64  `json:"supply"`
}

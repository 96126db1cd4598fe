// Package chains holds the static chain metadata table. It is consumed
// read-only for display and for picking a default RPC endpoint; nothing in
// the sweeper mutates it.
package chains

import "fmt"

// Chain describes one supported network.
type Chain struct {
	ID          int64  `json:"id"`
	TokenSymbol string `json:"token_symbol"`
	Name        string `json:"name"`
	RPCURL      string `json:"rpc_url"`
	ExplorerURL string `json:"explorer_url"`
}

var supported = map[int64]Chain{
	1: {
		ID:          1,
		TokenSymbol: "ETH",
		Name:        "Ethereum Mainnet",
		RPCURL:      "https://mainnet.infura.io/v3/b0ddbf6d18524aaf84f91b46fba9459f",
		ExplorerURL: "https://etherscan.io",
	},
	3: {
		ID:          3,
		TokenSymbol: "tROP",
		Name:        "Ethereum Ropsten Testnet",
		RPCURL:      "https://ropsten.infura.io/v3/b0ddbf6d18524aaf84f91b46fba9459f",
		ExplorerURL: "https://ropsten.etherscan.io",
	},
	4: {
		ID:          4,
		TokenSymbol: "rETH",
		Name:        "Ethereum Rinkeby Testnet",
		RPCURL:      "https://rinkeby.infura.io/v3/b0ddbf6d18524aaf84f91b46fba9459f",
		ExplorerURL: "https://rinkeby.etherscan.io",
	},
	56: {
		ID:          56,
		TokenSymbol: "BNB",
		Name:        "Binance Smart Chain",
		RPCURL:      "https://bsc-dataseed.binance.org/",
		ExplorerURL: "https://bscscan.com",
	},
	137: {
		ID:          137,
		TokenSymbol: "MATIC",
		Name:        "Matic Mainnet",
		RPCURL:      "https://matic-mainnet.chainstacklabs.com",
		ExplorerURL: "https://polygonscan.com",
	},
	250: {
		ID:          250,
		TokenSymbol: "FTM",
		Name:        "Fantom Mainnet",
		RPCURL:      "https://rpc.ftm.tools/",
		ExplorerURL: "https://ftmscan.com",
	},
}

// Get returns the metadata for a chain ID.
func Get(id int64) (Chain, error) {
	c, ok := supported[id]
	if !ok {
		return Chain{}, fmt.Errorf("unsupported chain id: %d", id)
	}
	return c, nil
}

// All returns every supported chain, keyed by chain ID.
func All() map[int64]Chain {
	out := make(map[int64]Chain, len(supported))
	for id, c := range supported {
		out[id] = c
	}
	return out
}

// TxURL builds an explorer link for a transaction hash, or "" when the chain
// is unknown.
func TxURL(id int64, txHash string) string {
	c, ok := supported[id]
	if !ok {
		return ""
	}
	return c.ExplorerURL + "/tx/" + txHash
}

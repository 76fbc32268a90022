package domain

// Call is a discretionary trading signal: a caller flagged a token at AlertTime.
// Corresponds to calls table in PostgreSQL.
type Call struct {
	CallID       string  `json:"call_id"`       // deterministic hash of chain|token|caller|alert_time
	Chain        string  `json:"chain"`         // e.g. "solana", "ethereum", "base"
	TokenAddress string  `json:"token_address"` // token mint / contract address
	Caller       string  `json:"caller"`        // channel or user that posted the call
	AlertTime    int64   `json:"alert_time"`    // unix seconds
	AlertPrice   float64 `json:"alert_price"`   // price quoted with the alert, 0 when unknown
}

// Chain name constants
const (
	ChainSolana   = "solana"
	ChainEthereum = "ethereum"
	ChainBase     = "base"
	ChainBSC      = "bsc"
)

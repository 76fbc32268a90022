package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"call-backtest-lab/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(call_id|strategy_id)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(callID, strategyID string) string {
	return sum(fmt.Sprintf("%s|%s", callID, strategyID))
}

// ComputeCallID computes a deterministic call_id for sources that carry none.
// Formula: SHA256(chain|token_address|caller|alert_time)
func ComputeCallID(chain, tokenAddress, caller string, alertTime int64) string {
	return sum(fmt.Sprintf("%s|%s|%s|%d", chain, tokenAddress, caller, alertTime))
}

// ComputeStrategyID hashes the canonical JSON encoding of params.
// Struct fields encode in declaration order, so equal params give equal ids.
func ComputeStrategyID(params domain.StrategyParams) string {
	data, err := json.Marshal(params)
	if err != nil {
		// StrategyParams holds only plain values; fall back to the Go syntax form.
		data = fmt.Appendf(nil, "%#v", params)
	}
	return sum(string(data))
}

func sum(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package rulerisk

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Hash returns the deterministic content digest of ruleText used as
// rule_hash, gating whether RuleStore.UpsertLatest rewrites a row.
func Hash(ruleText string) string {
	sum := ethcrypto.Keccak256([]byte(ruleText))
	return "0x" + hex.EncodeToString(sum)
}

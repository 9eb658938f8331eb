package shared

import "fmt"

// LedgerCacheKey builds redis keys for cached owner ledgers.
func LedgerCacheKey(owner string, version int64) string {
	return fmt.Sprintf("ledger:owner:%s:v%d", owner, version)
}

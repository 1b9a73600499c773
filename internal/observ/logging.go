package observ

import (
	"encoding/json"
	"fmt"
	"time"
)

// Log emits one JSON line per event on stdout. Collection cycles are
// cron-driven and scraped by log shippers, so structured single-line
// output is the contract.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	fmt.Println(string(b))
}

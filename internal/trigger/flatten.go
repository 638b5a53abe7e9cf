package trigger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/chainwatch/monitor/internal/model"
)

// Flatten builds the dotted-path variable map for one MatchRecord (spec
// §4.9 step 1): the record's own fields are flattened at top level (e.g.
// "network", "monitor", "tx_hash", "signatures.0.signature"), and the whole
// record is duplicated under "monitor_match.*" for full programmatic
// access. Canonical "transaction.*"/"network.*" keys are always present
// even when the underlying record omits them (spec §4.9 step 2).
func Flatten(record model.MatchRecord) map[string]string {
	raw, err := json.Marshal(record)
	if err != nil {
		return map[string]string{}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]string{}
	}

	vars := make(map[string]string)
	flattenInto("", generic, vars)
	flattenInto("monitor_match", generic, vars)

	if _, ok := vars["transaction.hash"]; !ok {
		vars["transaction.hash"] = record.TxHash
	}
	if _, ok := vars["network.slug"]; !ok {
		vars["network.slug"] = record.Network
	}
	vars["network.chain"] = string(record.Chain)
	vars["block.number"] = strconv.FormatUint(record.BlockNum, 10)
	vars["monitor.name"] = record.Monitor

	return vars
}

// flattenInto mirrors original_source's flatten_json_path: objects recurse
// key-by-key, arrays recurse index-by-index, and every primitive leaf is
// stringified ("null" for JSON null).
func flattenInto(prefix string, value any, out map[string]string) {
	switch v := value.(type) {
	case map[string]any:
		for key, val := range v {
			flattenInto(joinPath(prefix, key), val, out)
		}
	case []any:
		for idx, val := range v {
			flattenInto(joinPath(prefix, strconv.Itoa(idx)), val, out)
		}
	case nil:
		insertPrimitive(prefix, "null", out)
	case string:
		insertPrimitive(prefix, v, out)
	case bool:
		insertPrimitive(prefix, strconv.FormatBool(v), out)
	case float64:
		insertPrimitive(prefix, formatNumber(v), out)
	default:
		insertPrimitive(prefix, fmt.Sprintf("%v", v), out)
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func insertPrimitive(prefix, value string, out map[string]string) {
	if prefix == "" {
		prefix = "value"
	}
	out[prefix] = value
}

// formatNumber renders a JSON number the way encoding/json decoded it
// (float64), trimming a trailing ".0" so integer-valued fields like block
// numbers don't render as "123.0" in templates.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

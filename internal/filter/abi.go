package filter

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainwatch/monitor/internal/filter/expr"
)

// computeSelector derives the 4-byte function selector from a canonical
// signature string (used when no ABI is available to decode by).
func computeSelector(signature string) ([]byte, error) {
	canonical := strings.Join(strings.Fields(signature), "")
	if canonical == "" {
		return nil, fmt.Errorf("filter: empty signature")
	}
	hash := crypto.Keccak256([]byte(canonical))
	return hash[:4], nil
}

// decodedABIArgs resolves the decoded-argument expr.Params for a matched
// function call or event log, given its contract ABI and the signature
// that matched.
type decodedABIArgs struct {
	signature string // canonical, e.g. "transfer(address,uint256)"
	params    expr.Params
}

// decodeFunctionCall finds the ABI method whose 4-byte selector matches the
// transaction input, and decodes its arguments by name. Returns
// (nil, nil) if abiJSON is empty or the selector has no match in it — the
// caller then falls back to selector-only matching with no expression
// support.
func decodeFunctionCall(abiJSON, inputHex string) (*decodedABIArgs, error) {
	if strings.TrimSpace(abiJSON) == "" {
		return nil, nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("filter: invalid contract abi: %w", err)
	}
	data, err := hexToBytes(inputHex)
	if err != nil || len(data) < 4 {
		return nil, nil
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("filter: unpack function args for %s: %w", method.Sig, err)
	}
	return &decodedABIArgs{
		signature: method.Sig,
		params:    namedParams(method.Inputs, values),
	}, nil
}

// decodeEventLog finds the ABI event whose selector (topics[0]) matches,
// decodes its non-indexed data arguments by name, and exposes indexed
// arguments as raw topic hex strings. Returns (nil, nil) when abiJSON is
// empty or the selector is unknown to it.
func decodeEventLog(abiJSON string, topics []string, data string) (*decodedABIArgs, error) {
	if strings.TrimSpace(abiJSON) == "" || len(topics) == 0 {
		return nil, nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("filter: invalid contract abi: %w", err)
	}
	selector := common.HexToHash(topics[0])
	event, err := parsed.EventByID(selector)
	if err != nil {
		return nil, nil
	}

	dataBytes, err := hexToBytes(data)
	if err != nil {
		return nil, fmt.Errorf("filter: decode event data: %w", err)
	}
	nonIndexed := event.Inputs.NonIndexed()
	values, err := nonIndexed.Unpack(dataBytes)
	if err != nil {
		return nil, fmt.Errorf("filter: unpack event args for %s: %w", event.Sig, err)
	}

	params := namedParams(nonIndexed, values)
	indexedTopics := topics[1:]
	idx := 0
	for _, input := range event.Inputs {
		if !input.Indexed {
			continue
		}
		if idx >= len(indexedTopics) {
			break
		}
		params[input.Name] = expr.Param{Value: indexedTopics[idx], Kind: "address"}
		idx++
	}

	return &decodedABIArgs{signature: event.Sig, params: params}, nil
}

func namedParams(args abi.Arguments, values []any) expr.Params {
	params := expr.Params{}
	for i, arg := range args {
		if i >= len(values) {
			break
		}
		name := arg.Name
		if name == "" {
			name = "arg" + strconv.Itoa(i)
		}
		value, kind := classifyABIValue(values[i])
		params[name] = expr.Param{Value: value, Kind: kind}
	}
	return params
}

func classifyABIValue(v any) (string, string) {
	switch t := v.(type) {
	case common.Address:
		return t.Hex(), "address"
	case [32]byte:
		return hex.EncodeToString(t[:]), "string"
	case bool:
		return strconv.FormatBool(t), "bool"
	case string:
		return t, "string"
	case fmt.Stringer:
		return t.String(), "u256" // *big.Int satisfies Stringer
	default:
		return fmt.Sprintf("%v", t), "string"
	}
}

func hexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

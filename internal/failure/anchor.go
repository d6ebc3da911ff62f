package failure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// AnchorError represents an error from Anchor framework
type AnchorError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// ParseAnchorErrorLog parses an Anchor error log string
// Example: "Program log: AnchorError occurred. Error Code: CandyMachineEmpty. Error Number: 311. Error Message: Candy machine is empty!."
func ParseAnchorErrorLog(logStr string) AnchorError {
	result := AnchorError{}

	// Extract error code
	if parts := strings.Split(logStr, "Error Number:"); len(parts) > 1 {
		numParts := strings.Split(parts[1], ".")
		if len(numParts) > 0 {
			fmt.Sscanf(strings.TrimSpace(numParts[0]), "%d", &result.Code)
		}
	}

	// Extract error name
	if parts := strings.Split(logStr, "Error Code:"); len(parts) > 1 {
		nameParts := strings.Split(parts[1], ".")
		if len(nameParts) > 0 {
			result.Name = strings.TrimSpace(nameParts[0])
		}
	}

	// Extract error message
	if parts := strings.Split(logStr, "Error Message:"); len(parts) > 1 {
		result.Msg = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), "."))
	}

	return result
}

// SimulationLogs returns the program logs attached to a failed preflight
// simulation, if any.
func SimulationLogs(err error) []string {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) || !strings.Contains(rpcErr.Message, "Transaction simulation failed") {
		return nil
	}
	dataMap, ok := rpcErr.Data.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := dataMap["logs"].([]interface{})
	if !ok {
		return nil
	}
	logs := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			logs = append(logs, s)
		}
	}
	return logs
}

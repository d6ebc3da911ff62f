package failure

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/rovshanmuradov/candymint/internal/blockchain"
)

// Candy Machine v2 program error codes.
const (
	CodeNotEnoughTokens   = 308 // 0x134
	CodeNotEnoughSOL      = 309 // 0x135
	CodeCandyMachineEmpty = 311 // 0x137
	CodeNotLive           = 312 // 0x138
)

var (
	customHexRe    = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)
	customStatusRe = regexp.MustCompile(`Custom:\s*(\d+)`)
	errorNumberRe  = regexp.MustCompile(`Error Number: (\d+)`)
)

// Classify maps err into the taxonomy. It returns nil for a nil error and
// passes already classified errors through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(SubmissionTimeout, err)
	}

	if code := ProgramErrorCode(err); code != 0 {
		return fromCode(code, err)
	}

	msg := err.Error()
	switch {
	case errors.Is(err, blockchain.ErrAccountNotFound),
		strings.Contains(msg, "Account does not exist"):
		return New(ConfigNotFound, err)
	case errors.Is(err, blockchain.ErrUnavailable),
		strings.Contains(msg, "failed to get info about account"):
		return New(NetworkUnavailable, err)
	case strings.TrimSpace(msg) == "":
		// nothing came back at all: treat as a client-side timeout
		return New(SubmissionTimeout, err)
	case strings.Contains(msg, "insufficient lamports"),
		strings.Contains(msg, "Attempt to debit an account but found no record of a prior credit"):
		return New(InsufficientFunds, err)
	}

	return &Error{Kind: Rejected, Message: msg, Err: err}
}

// ClassifyReason classifies an on-chain rejection reason reported by a
// transaction status.
func ClassifyReason(reason string) *Error {
	if code := codeFromText(reason); code != 0 {
		return fromCode(code, errors.New(reason))
	}
	if strings.TrimSpace(reason) == "" {
		return New(SubmissionTimeout, nil)
	}
	return &Error{Kind: Rejected, Message: reason, Err: errors.New(reason)}
}

func fromCode(code int, err error) *Error {
	var out *Error
	switch code {
	case CodeNotEnoughTokens, CodeNotEnoughSOL:
		out = New(InsufficientFunds, err)
	case CodeCandyMachineEmpty:
		out = New(SoldOut, err)
	case CodeNotLive:
		out = New(NotYetLive, err)
	default:
		msg := "program error " + strconv.Itoa(code)
		if err != nil {
			msg = err.Error()
		}
		out = &Error{Kind: Rejected, Message: msg, Err: err}
	}
	out.Code = code
	return out
}

// ProgramErrorCode extracts a custom program error code from err, looking at
// JSON-RPC error data first and the error text second. It returns 0 when no
// code is present.
func ProgramErrorCode(err error) int {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Data != nil {
		if code := codeFromRPCData(rpcErr.Data); code != 0 {
			return code
		}
	}
	return codeFromText(err.Error())
}

func codeFromRPCData(data interface{}) int {
	dataMap, ok := data.(map[string]interface{})
	if !ok {
		return 0
	}

	if logs, ok := dataMap["logs"].([]interface{}); ok {
		for _, entry := range logs {
			line, ok := entry.(string)
			if !ok || !strings.Contains(line, "AnchorError") && !strings.Contains(line, "custom program error") {
				continue
			}
			if ae := ParseAnchorErrorLog(line); ae.Code != 0 {
				return ae.Code
			}
			if code := codeFromText(line); code != 0 {
				return code
			}
		}
	}

	// {"err": {"InstructionError": [0, {"Custom": 311}]}}
	if errMap, ok := dataMap["err"].(map[string]interface{}); ok {
		if ie, ok := errMap["InstructionError"].([]interface{}); ok && len(ie) == 2 {
			if custom, ok := ie[1].(map[string]interface{}); ok {
				if n, ok := custom["Custom"].(float64); ok {
					return int(n)
				}
			}
		}
	}
	return 0
}

func codeFromText(text string) int {
	if m := customHexRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseInt(m[1], 16, 32); err == nil {
			return int(v)
		}
	}
	for _, re := range []*regexp.Regexp{customStatusRe, errorNumberRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				return v
			}
		}
	}
	return 0
}

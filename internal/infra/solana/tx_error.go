// internal/infra/solana/tx_error.go
package solana

import (
	"bytes"
	"encoding/json"
	"strings"

	mintdom "candymint/internal/domain/mint"
)

// parseTransactionError は RPC が返す TransactionError JSON を ChainError に変換します。
// null / 空なら nil。
//
// 例:
//
//	{"InstructionError":[4,{"Custom":311}]}
//	{"InstructionError":[0,"InvalidAccountData"]}
//	"AccountNotFound"
func parseTransactionError(raw json.RawMessage) *mintdom.ChainError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	ce := &mintdom.ChainError{InstructionIndex: -1, Raw: string(trimmed)}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		// 文字列形式（"AccountNotFound" など）
		var s string
		if json.Unmarshal(trimmed, &s) == nil {
			ce.Raw = s
		}
		return ce
	}

	ixRaw, ok := obj["InstructionError"]
	if !ok {
		return ce
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(ixRaw, &pair); err != nil || len(pair) != 2 {
		return ce
	}

	var idx int
	if json.Unmarshal(pair[0], &idx) == nil {
		ce.InstructionIndex = idx
	}

	var inner map[string]json.RawMessage
	if json.Unmarshal(pair[1], &inner) == nil {
		if codeRaw, ok := inner["Custom"]; ok {
			var code uint32
			if json.Unmarshal(codeRaw, &code) == nil {
				ce.Code = code
				ce.HasCode = true
			}
		}
		return ce
	}

	var name string
	if json.Unmarshal(pair[1], &name) == nil && strings.TrimSpace(name) != "" {
		ce.Raw = name
	}
	return ce
}

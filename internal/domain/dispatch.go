package domain

import (
	"fmt"
	"strings"
)

// ModuleError is a dispatch error attributed to a pallet. Pallet, Error and Docs
// are filled from runtime metadata when it is available.
type ModuleError struct {
	PalletIndex uint8  `json:"pallet_index"`
	ErrorIndex  uint8  `json:"error_index"`
	Pallet      string `json:"pallet,omitempty"`
	Error       string `json:"error,omitempty"`
	Docs        string `json:"docs,omitempty"`
}

// DispatchError is the decoded payload of System.ExtrinsicFailed.
type DispatchError struct {
	Module *ModuleError `json:"module,omitempty"`
	Other  string       `json:"other,omitempty"`
}

func (e DispatchError) String() string {
	if m := e.Module; m != nil {
		if m.Pallet == "" {
			return fmt.Sprintf("Module { index: %d, error: %d }", m.PalletIndex, m.ErrorIndex)
		}
		name := m.Pallet + "." + m.Error
		if m.Docs == "" {
			return name
		}
		return name + ": " + m.Docs
	}
	if e.Other == "" {
		return "unknown dispatch error"
	}
	return e.Other
}

var dispatchErrorVariants = []string{
	"Other",
	"CannotLookup",
	"BadOrigin",
	"Module",
	"ConsumerRemaining",
	"NoProviders",
	"TooManyConsumers",
	"Token",
	"Arithmetic",
	"Transactional",
	"Exhausted",
	"Corruption",
	"Unavailable",
	"RootNotAllowed",
}

// ParseDispatchError reads the normalized dispatch_error field. Module errors are
// structs with index/error members, optionally wrapped in a "Module" key. Unit
// variants arrive as their name or variant index.
func ParseDispatchError(value any) DispatchError {
	switch v := value.(type) {
	case map[string]any:
		if module, ok := v["Module"]; ok {
			return ParseDispatchError(module)
		}
		if len(v) == 1 {
			for variant, inner := range v {
				if variant == "index" || variant == "error" {
					break
				}
				return DispatchError{Other: fmt.Sprintf("%s(%v)", variant, inner)}
			}
		}
		index, indexErr := AsUint64(v["index"])
		raw, bytesErr := AsBytes(v["error"])
		if indexErr == nil && bytesErr == nil && len(raw) > 0 {
			return DispatchError{Module: &ModuleError{PalletIndex: uint8(index), ErrorIndex: raw[0]}}
		}
		if indexErr == nil {
			if code, err := AsUint64(v["error"]); err == nil {
				return DispatchError{Module: &ModuleError{PalletIndex: uint8(index), ErrorIndex: uint8(code)}}
			}
		}
		return DispatchError{Other: fmt.Sprintf("%v", v)}
	case uint64:
		if int(v) < len(dispatchErrorVariants) {
			return DispatchError{Other: dispatchErrorVariants[v]}
		}
		return DispatchError{Other: fmt.Sprintf("DispatchError(%d)", v)}
	case string:
		return DispatchError{Other: v}
	case nil:
		return DispatchError{}
	default:
		return DispatchError{Other: fmt.Sprintf("%v", v)}
	}
}

// JoinDocs collapses metadata doc lines into one sentence.
func JoinDocs(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

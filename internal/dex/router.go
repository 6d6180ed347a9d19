package dex

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotSwap is returned when calldata is not a recognised router swap call.
var ErrNotSwap = errors.New("calldata is not a router swap")

// Router swap method names.
const (
	MethodSwapExactETHForTokens    = "swapExactETHForTokens"
	MethodSwapETHForExactTokens    = "swapETHForExactTokens"
	MethodSwapExactTokensForETH    = "swapExactTokensForETH"
	MethodSwapTokensForExactETH    = "swapTokensForExactETH"
	MethodSwapExactTokensForTokens = "swapExactTokensForTokens"
	MethodSwapTokensForExactTokens = "swapTokensForExactTokens"

	MethodSwapExactTokensForTokensFee = "swapExactTokensForTokensSupportingFeeOnTransferTokens"
	MethodSwapExactETHForTokensFee    = "swapExactETHForTokensSupportingFeeOnTransferTokens"
	MethodSwapExactTokensForETHFee    = "swapExactTokensForETHSupportingFeeOnTransferTokens"
)

// SwapCall is the part of a decoded router swap the copy trader needs.
type SwapCall struct {
	Method string
	Path   []common.Address
}

// InputToken is the first hop of the path.
func (s SwapCall) InputToken() common.Address { return s.Path[0] }

// OutputToken is the last hop of the path.
func (s SwapCall) OutputToken() common.Address { return s.Path[len(s.Path)-1] }

// DecodeSwap extracts the token path from router swap calldata.
func DecodeSwap(payload []byte) (SwapCall, error) {
	if len(payload) < 4 {
		return SwapCall{}, ErrNotSwap
	}
	method, err := RouterABI.MethodById(payload[:4])
	if err != nil || method.Name == "getAmountsOut" {
		return SwapCall{}, ErrNotSwap
	}

	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, payload[4:]); err != nil {
		return SwapCall{}, fmt.Errorf("decode %s: %w", method.Name, err)
	}
	path, ok := args["path"].([]common.Address)
	if !ok || len(path) < 2 {
		return SwapCall{}, fmt.Errorf("decode %s: missing path", method.Name)
	}
	return SwapCall{Method: method.Name, Path: path}, nil
}

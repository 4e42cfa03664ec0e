package task

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	xerrors "AXR-Monitor/internal/errors"
)

// SwapRequest 描述一次兑换请求。Amount 保留配置中的原始数字文本，
// 序列化时以 JSON 数字输出。
type SwapRequest struct {
	FromSymbol string      `json:"fromSymbol" yaml:"from"`
	ToSymbol   string      `json:"toSymbol" yaml:"to"`
	Amount     json.Number `json:"amount" yaml:"amount"`
}

func (s SwapRequest) String() string {
	return fmt.Sprintf("%s %s -> %s", s.Amount, s.FromSymbol, s.ToSymbol)
}

// Validate 检查币种非空且数量为非负十进制数。
func (s SwapRequest) Validate() error {
	if strings.TrimSpace(s.FromSymbol) == "" || strings.TrimSpace(s.ToSymbol) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "swap symbols must not be empty")
	}
	return validateAmount(string(s.Amount))
}

// DefaultSwapParams 返回未配置时使用的兑换参数。
func DefaultSwapParams() []SwapRequest {
	return []SwapRequest{{FromSymbol: "USDC", ToSymbol: "WETH", Amount: "0.001"}}
}

// ParseSwapParams 解析 "from,to,amount;from,to,amount" 格式的兑换参数，
// 分号或换行分隔条目，任意条目格式错误都会导致整体失败。
func ParseSwapParams(raw string) ([]SwapRequest, error) {
	chunks := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})
	params := make([]SwapRequest, 0, len(chunks))
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		fields := strings.Split(chunk, ",")
		if len(fields) != 3 {
			return nil, xerrors.Newf(xerrors.CodeInvalidArgument,
				"invalid swap params %q: expected from,to,amount", chunk)
		}
		req := SwapRequest{
			FromSymbol: strings.TrimSpace(fields[0]),
			ToSymbol:   strings.TrimSpace(fields[1]),
			Amount:     json.Number(strings.TrimSpace(fields[2])),
		}
		if err := req.Validate(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid swap params %q", chunk))
		}
		params = append(params, req)
	}
	if len(params) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "no swap params configured")
	}
	return params, nil
}

func validateAmount(amount string) error {
	if amount == "" || !json.Valid([]byte(amount)) {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "amount %q is not a decimal number", amount)
	}
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "amount %q is not a decimal number", amount)
	}
	if v < 0 {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "amount %q must not be negative", amount)
	}
	return nil
}

package broker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OCC 期权代码：标的 + YYMMDD + C/P + 行权价×1000（8位），例如 AAPL240119C00150000
const occSuffixLen = 6 + 1 + 8

var strikeScale = decimal.NewFromInt(1000)

func rightLetter(right string) string {
	if strings.EqualFold(right, "put") || strings.EqualFold(right, "p") {
		return "P"
	}
	return "C"
}

// FormatOCC 合约转 OCC 代码
func FormatOCC(c Contract) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Ticker))
	if ticker == "" || len(ticker) > 6 {
		return "", fmt.Errorf("invalid option root %q", c.Ticker)
	}
	if !c.Strike.IsPositive() {
		return "", fmt.Errorf("invalid strike %s", c.Strike)
	}
	strike := c.Strike.Mul(strikeScale).Round(0).IntPart()
	if strike > 99999999 {
		return "", fmt.Errorf("strike %s out of range", c.Strike)
	}
	return fmt.Sprintf("%s%s%s%08d", ticker, c.Expiry.Format("060102"), rightLetter(c.Right), strike), nil
}

// ParseOCC 解析 OCC 代码
func ParseOCC(symbol string) (Contract, error) {
	symbol = strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(symbol)), " ", "")
	if len(symbol) <= occSuffixLen {
		return Contract{}, fmt.Errorf("invalid occ symbol %q", symbol)
	}
	root := symbol[:len(symbol)-occSuffixLen]
	suffix := symbol[len(symbol)-occSuffixLen:]

	expiry, err := time.Parse("060102", suffix[:6])
	if err != nil {
		return Contract{}, fmt.Errorf("invalid occ expiry %q: %w", symbol, err)
	}

	var right string
	switch suffix[6] {
	case 'C':
		right = "call"
	case 'P':
		right = "put"
	default:
		return Contract{}, fmt.Errorf("invalid occ right %q", symbol)
	}

	strike, err := strconv.ParseInt(suffix[7:], 10, 64)
	if err != nil {
		return Contract{}, fmt.Errorf("invalid occ strike %q: %w", symbol, err)
	}

	return Contract{
		Ticker: root,
		Right:  right,
		Strike: decimal.NewFromInt(strike).Div(strikeScale),
		Expiry: expiry,
	}, nil
}

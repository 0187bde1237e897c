package helpers

import "fmt"

// FormatUSD formats a dollar amount with thousand separators, e.g.
// "$1,250,000". Cents are dropped; notional figures in logs and payloads
// do not need them.
func FormatUSD(amount float64) string {
	value := int64(amount)

	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%d", value)
	length := len(str)

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return fmt.Sprintf("-$%s", result)
	}
	return fmt.Sprintf("$%s", result)
}

package common

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatBalance formats a balance amount with thousand separators
func FormatBalance(balance int64) string {
	if balance < 0 {
		return "-" + FormatBalance(-balance)
	}

	str := strconv.FormatInt(balance, 10)

	// Add commas for thousands
	n := len(str)
	if n <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}

	return result.String()
}

// FormatPoints formats an amount with its unit
func FormatPoints(amount int64) string {
	return FormatBalance(amount) + " points"
}

// FormatMultiplier renders a decimal multiplier string as x1.20
func FormatMultiplier(multiplier string) string {
	if multiplier == "" {
		return "-"
	}
	return "x" + multiplier
}

// UserMention renders a user id as a chat mention
func UserMention(userID int64) string {
	return fmt.Sprintf("<@%d>", userID)
}

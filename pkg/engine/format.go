package engine

import (
	"fmt"
	"strings"
)

// callbackPrefix tags button payloads so unrelated callbacks are ignored.
const callbackPrefix = "rate"

// PromptText is the body of a rate prompt: merchant and amount, enough for
// the user to recognize the purchase.
func PromptText(merchant string, amount float64) string {
	return fmt.Sprintf("%s, $%.2f", merchant, amount)
}

// SelectionText replaces a prompt once a rate has been chosen.
func SelectionText(percent int, merchant string) string {
	return fmt.Sprintf("You selected %d%% for %s", percent, merchant)
}

// ConfirmationText announces a finalized cashback.
func ConfirmationText(cashback float64, merchant string) string {
	return fmt.Sprintf("Cashback of %.2f added for %s", cashback, merchant)
}

// TotalsText reports the grand total recomputed after an append, paired
// with a second recomputation as a drift check. The two values agree in a
// correct run.
func TotalsText(newTotal, oldTotal float64) string {
	return fmt.Sprintf("New total: $%.2f, old total: $%.2f", newTotal, oldTotal)
}

// CallbackData encodes a button payload: rate|<correlation id>|<percent>.
func CallbackData(correlationID string, percent int) string {
	return fmt.Sprintf("%s|%s|%d", callbackPrefix, correlationID, percent)
}

// ParseCallbackData decodes a button payload produced by CallbackData.
// Returns ok=false for payloads that are not rate callbacks.
func ParseCallbackData(data string) (correlationID, percent string, ok bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}

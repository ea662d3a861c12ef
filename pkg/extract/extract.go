// Package extract parses card transaction notification emails into
// structured transactions.
package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/cashwatch/cashwatch/pkg/api"
)

// SubjectMarker identifies transaction notification emails. Filtering on it
// is the mail reader's job; bodies handed to Extract are assumed to come
// from matching messages.
const SubjectMarker = "Transaccion Realizada con su Tarjeta BAC Panama"

var (
	merchantRegex = regexp.MustCompile(`Monto\s*(.*?)\s*USD`)
	amountRegex   = regexp.MustCompile(`USD\s*([\d,]+(?:\.\d{1,2})?)`)
)

// Extract parses an email body into a Transaction. The merchant is the text
// between the "Monto" and "USD" markers; the amount is the first decimal
// numeral after "USD", thousands separators stripped, rounded half-up to
// two decimals. Pure and deterministic.
func Extract(body string) (api.Transaction, error) {
	merchantMatches := merchantRegex.FindStringSubmatch(body)
	if len(merchantMatches) < 2 {
		return api.Transaction{}, api.ErrNoMerchantMarker
	}
	merchant := strings.TrimSpace(merchantMatches[1])
	if merchant == "" {
		return api.Transaction{}, api.ErrNoMerchantMarker
	}

	amountMatches := amountRegex.FindStringSubmatch(body)
	if len(amountMatches) < 2 {
		return api.Transaction{}, api.ErrNoAmountMarker
	}

	amountStr := strings.ReplaceAll(amountMatches[1], ",", "")
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil {
		return api.Transaction{}, api.ErrMalformedAmount
	}

	return api.Transaction{
		Merchant: merchant,
		Amount:   Round2(amount),
	}, nil
}

// Round2 rounds a non-negative monetary value half-up to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

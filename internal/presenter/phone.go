package presenter

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// WhatsAppLink returns a wa.me deep link when customerID looks like a phone
// number, or "" otherwise. Numbers that libphonenumber recognises are
// rewritten to E.164 using region for national formats; anything else with a
// plausible digit count is linked as typed.
func WhatsAppLink(customerID, region string) string {
	digits := onlyDigits(customerID)
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return ""
	}

	raw := strings.TrimSpace(customerID)
	candidate, parseRegion := digits, region
	switch {
	case strings.HasPrefix(raw, "+"):
		candidate, parseRegion = "+"+digits, "ZZ"
	case strings.HasPrefix(digits, "00"):
		candidate, parseRegion = "+"+digits[2:], "ZZ"
	}

	if parseRegion != "" {
		if num, err := libphonenumber.Parse(candidate, parseRegion); err == nil && libphonenumber.IsValidNumber(num) {
			digits = strings.TrimPrefix(libphonenumber.Format(num, libphonenumber.E164), "+")
		}
	}
	return "https://wa.me/" + digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

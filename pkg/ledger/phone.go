package ledger

import (
	"github.com/ttacon/libphonenumber"
)

// defaultRegion is used for numbers typed without a country code.
const defaultRegion = "BR"

// normalizePhone validates a client phone number and returns it in E.164.
// An empty phone stays empty.
func normalizePhone(phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	p, err := libphonenumber.Parse(phone, defaultRegion)
	if err != nil {
		return "", invalid("phone", "%v", err)
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", invalid("phone", "phone number is not valid")
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

package models

import (
	"crypto/rand"
	"io"
)

const numberLength = 16

// Issuer prefixes per category. Debit numbers look like Visa, credit like
// Mastercard.
var numberPrefix = map[Category]string{
	CategoryDebit:  "4",
	CategoryCredit: "5",
}

// GenerateNumber returns a 16 digit, Luhn-valid card number for category.
// A nil source uses crypto/rand.
func GenerateNumber(category Category, source io.Reader) (string, error) {
	if source == nil {
		source = rand.Reader
	}
	prefix := numberPrefix[category]
	if prefix == "" {
		prefix = "9"
	}

	digits := make([]byte, 0, numberLength)
	digits = append(digits, prefix...)

	buf := make([]byte, 1)
	for len(digits) < numberLength-1 {
		if _, err := io.ReadFull(source, buf); err != nil {
			return "", err
		}
		// reject 250-255 so every digit is equally likely
		if buf[0] >= 250 {
			continue
		}
		digits = append(digits, '0'+buf[0]%10)
	}
	digits = append(digits, luhnCheckDigit(digits))
	return string(digits), nil
}

// LuhnValid reports whether number is a 16 digit string with a valid Luhn
// checksum.
func LuhnValid(number string) bool {
	if len(number) != numberLength {
		return false
	}
	for i := 0; i < len(number); i++ {
		if number[i] < '0' || number[i] > '9' {
			return false
		}
	}
	return luhnSum([]byte(number), false)%10 == 0
}

func luhnCheckDigit(partial []byte) byte {
	sum := luhnSum(partial, true)
	return '0' + byte((10-sum%10)%10)
}

// luhnSum doubles every second digit from the right. When the check digit is
// not yet present, doubling starts at the rightmost digit.
func luhnSum(digits []byte, doubleFirst bool) int {
	sum := 0
	double := doubleFirst
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum
}

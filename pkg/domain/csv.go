package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const nullText = "NULL"

// CSVRecord is implemented by every entity and view that renders a CSV line.
type CSVRecord interface {
	Entity
	ToCSVString() string
}

func csvLine(values ...string) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(v)
		b.WriteByte('"')
	}
	return b.String()
}

func describe(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "%s: %s; ", pairs[i], pairs[i+1])
	}
	return b.String()
}

func itoa(n int) string { return strconv.Itoa(n) }

func nullableItoa(p *int) string {
	if p == nil {
		return nullText
	}
	return strconv.Itoa(*p)
}

// FormatOffset renders a UTC offset with two integer and two fraction digits,
// for example "-05.00" or "05.50".
func FormatOffset(offset float64) string {
	sign := ""
	if offset < 0 {
		sign = "-"
	}
	return sign + fmt.Sprintf("%05.2f", math.Abs(offset))
}

func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func upperBool(b bool) string {
	return strings.ToUpper(titleBool(b))
}

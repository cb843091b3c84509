package voteshare

import (
	"math"
	"strconv"
	"strings"
)

// Questionnaire legend for the party questions (Q5, Q8, Q9). The order of
// INC and LEFT follows the printed legend, not the alphabet.
const (
	CodeAITC        = 1
	CodeBJP         = 2
	CodeINC         = 3
	CodeLEFT        = 4
	CodeIndependent = 12
	CodeOtherParty  = 44
	CodeNOTA        = 55
	CodeDidNotVote  = 66
	CodeWillNotVote = 67
	CodeNotEligible = 77
	CodeUndecided   = 78
	CodeRefused     = 88
)

var partyLegend = map[int]PartyCategory{
	CodeAITC:        AITC,
	CodeBJP:         BJP,
	CodeINC:         INC,
	CodeLEFT:        LEFT,
	CodeIndependent: Others,
	CodeOtherParty:  Others,
	CodeNOTA:        NWR,
	CodeDidNotVote:  NWR,
	CodeWillNotVote: NWR,
	CodeNotEligible: NWR,
	CodeUndecided:   NWR,
	CodeRefused:     NWR,
}

// Categorize maps a party response code to its category. A missing code is
// NWR; a code outside the legend is Others.
func Categorize(code *int) PartyCategory {
	if code == nil {
		return NWR
	}
	if c, ok := partyLegend[*code]; ok {
		return c
	}
	return Others
}

// CategorizeRaw categorizes a cell value as read from a spreadsheet.
// Blank and non-numeric values are NWR.
func CategorizeRaw(raw string) PartyCategory {
	return Categorize(ParseCode(raw))
}

// ParseCode parses a coded answer. Numeric text such as "3.0" truncates to 3.
func ParseCode(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return &n
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int(f)
	return &n
}

package extract

import (
	"strings"

	"github.com/labtrend/labtrend/internal/domain/record"
)

// Flag is an explicit abnormal marker printed next to a result.
type Flag string

const (
	NoFlag       Flag = ""
	FlagLow      Flag = "Low"
	FlagHigh     Flag = "High"
	FlagCritical Flag = "Critical"
)

// Classify decides whether a result is Normal, Low, High or Critical.
//
// An explicit flag always wins. Otherwise the value is compared against a
// "low-high" or ">threshold" reference range. Anything that does not parse
// as a number resolves to Normal.
func Classify(value, refRange string, flag Flag) record.Classification {
	switch flag {
	case FlagLow:
		return record.Low
	case FlagHigh:
		return record.High
	case FlagCritical:
		return record.Critical
	}

	if refRange == "" || value == "" {
		return record.Normal
	}
	val, ok := record.ParseNumber(value)
	if !ok {
		return record.Normal
	}

	if strings.Contains(refRange, "-") {
		parts := strings.Split(refRange, "-")
		if len(parts) != 2 {
			return record.Normal
		}
		low, okLow := record.ParseNumber(parts[0])
		high, okHigh := record.ParseNumber(parts[1])
		if !okLow || !okHigh {
			return record.Normal
		}
		switch {
		case val < low:
			return record.Low
		case val > high:
			return record.High
		}
		return record.Normal
	}

	if strings.Contains(refRange, ">") {
		threshold, ok := record.ParseNumber(strings.ReplaceAll(refRange, ">", ""))
		if ok && val <= threshold {
			return record.Low
		}
	}
	return record.Normal
}

package strategy

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var numberRun = regexp.MustCompile(`\d[\d.,'\s\x{00a0}\x{202f}]*`)

// ParsePrice extracts a decimal price from display text such as "€ 1.234,50",
// "$1,234.50", "CHF 1'234.50" or "12,90 EUR". Currency symbols, codes and
// thousands separators are dropped. Empty or unparsable input returns nil.
//
// Separator rules: when both '.' and ',' occur, the last one is the decimal
// mark. A lone ',' is decimal unless exactly three digits follow it. A lone
// '.' is decimal. A separator that repeats is a thousands separator.
func ParsePrice(raw string) *float64 {
	run := numberRun.FindString(raw)
	if run == "" {
		return nil
	}
	run = strings.Map(func(r rune) rune {
		if r == '\'' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, run)
	run = strings.TrimRight(run, ".,")
	if run == "" {
		return nil
	}

	dots := strings.Count(run, ".")
	commas := strings.Count(run, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(run, ",") > strings.LastIndex(run, ".") {
			run = strings.ReplaceAll(run, ".", "")
			run = strings.Replace(run, ",", ".", 1)
		} else {
			run = strings.ReplaceAll(run, ",", "")
		}
	case commas > 1:
		run = strings.ReplaceAll(run, ",", "")
	case commas == 1:
		if len(run)-strings.Index(run, ",")-1 == 3 {
			run = strings.ReplaceAll(run, ",", "")
		} else {
			run = strings.Replace(run, ",", ".", 1)
		}
	case dots > 1:
		run = strings.ReplaceAll(run, ".", "")
	}

	v, err := strconv.ParseFloat(run, 64)
	if err != nil {
		return nil
	}
	return &v
}

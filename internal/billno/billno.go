// Package billno generates sale identifiers of the form INV-YYYYMMDD-NNNN,
// numbered per calendar day.
package billno

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Lister interface {
	ListBillIDsWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

func DayPrefix(day time.Time) string {
	return "INV-" + day.Format("20060102") + "-"
}

func Format(day time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", DayPrefix(day), seq)
}

// Next returns the id following the highest parseable sequence already stored
// for day. Ids whose suffix is not a plain number are ignored.
func Next(ctx context.Context, q Lister, day time.Time) (string, error) {
	prefix := DayPrefix(day)
	ids, err := q.ListBillIDsWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("billno: list %s: %w", prefix, err)
	}
	highest := 0
	for _, id := range ids {
		if seq, ok := parseSeq(id, prefix); ok && seq > highest {
			highest = seq
		}
	}
	return Format(day, highest+1), nil
}

func parseSeq(id string, prefix string) (int, bool) {
	suffix, ok := strings.CutPrefix(id, prefix)
	if !ok || suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return seq, true
}

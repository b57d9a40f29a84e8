// Package ingest parses and validates recipient input for a batch.
//
// Input comes from two sources: delimited structured text (a CSV-style
// upload) and manually entered rows. Both are normalized, merged in a
// deterministic order (bulk rows first, manual rows after) and checked
// against the recipient ceiling.
package ingest

import (
	"errors"
	"fmt"
	"strings"

	"batchcall-platform/internal/campaign"
)

// MaxRecipients is the hard ceiling on the merged recipient set.
const MaxRecipients = 500

// Template is the structured-text header and an example row, offered to
// users as a download.
const Template = "name,phone_number\nJohn Doe,+14155551234\nJane Smith,+12125559876\n"

var (
	ErrEmptyInput         = errors.New("ingest: input must have a header row and at least one data row")
	ErrMissingPhoneColumn = errors.New("ingest: input must contain a phone number column (phone, phone_number, mobile, cell)")
)

// RecipientLimitExceededError reports a merged set over the ceiling, with
// the exact count observed.
type RecipientLimitExceededError struct {
	Count int
}

func (e *RecipientLimitExceededError) Error() string {
	return fmt.Sprintf("ingest: %d recipients — maximum is %d", e.Count, MaxRecipients)
}

// Row is a manually entered (name, phone) pair.
type Row struct {
	Name  string
	Phone string
}

// Result is the outcome of a parse or merge.
type Result struct {
	Recipients []campaign.Recipient
	// Skipped counts data rows dropped for an empty phone after
	// normalization. Skips are not fatal to the batch.
	Skipped int
}

// ParseText parses delimited recipient text. The first line is a required
// header; column detection is case-insensitive substring matching. A missing
// phone column is a hard failure, an unresolvable name falls back to the
// normalized phone number.
func ParseText(text string) (Result, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 2 {
		return Result{}, ErrEmptyInput
	}

	headers := splitRow(lines[0])
	for i := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(headers[i]))
	}

	nameIdx := -1
	lastNameIdx := -1
	phoneIdx := -1
	for i, h := range headers {
		switch {
		case h == "name" || (strings.Contains(h, "first") && strings.Contains(h, "name")):
			if nameIdx == -1 {
				nameIdx = i
			}
		case strings.Contains(h, "last") && strings.Contains(h, "name"):
			if lastNameIdx == -1 {
				lastNameIdx = i
			}
		case strings.Contains(h, "phone") || strings.Contains(h, "mobile") || strings.Contains(h, "cell"):
			if phoneIdx == -1 {
				phoneIdx = i
			}
		}
	}
	if phoneIdx == -1 {
		return Result{}, ErrMissingPhoneColumn
	}

	var out Result
	for _, line := range lines[1:] {
		values := splitRow(line)

		phone := NormalizePhone(field(values, phoneIdx))
		if phone == "" {
			out.Skipped++
			continue
		}

		name := ""
		if nameIdx != -1 {
			name = field(values, nameIdx)
		}
		if last := field(values, lastNameIdx); lastNameIdx != -1 && last != "" {
			if name != "" {
				name = name + " " + last
			} else {
				name = last
			}
		}
		if name == "" {
			name = phone
		}

		out.Recipients = append(out.Recipients, campaign.Recipient{
			Name:        name,
			PhoneNumber: phone,
			SortOrder:   len(out.Recipients),
			Status:      campaign.RecipientPending,
		})
	}
	return out, nil
}

// Merge combines bulk-parsed recipients with manual rows: bulk rows first in
// their original order, then manual rows in row position, sort_order
// continuing the sequence. Manual rows with an empty phone are dropped
// silently (they are still being typed). Merge is idempotent given the same
// two input sets.
//
// The merged set is checked against MaxRecipients; the ceiling applies to
// the combined total, not to either source individually.
func Merge(bulk []campaign.Recipient, manual []Row) (Result, error) {
	out := make([]campaign.Recipient, 0, len(bulk)+len(manual))
	for i, r := range bulk {
		r.SortOrder = i
		out = append(out, r)
	}
	for _, row := range manual {
		phone := NormalizePhone(row.Phone)
		if phone == "" {
			continue
		}
		name := strings.TrimSpace(row.Name)
		if name == "" {
			name = phone
		}
		out = append(out, campaign.Recipient{
			Name:        name,
			PhoneNumber: phone,
			SortOrder:   len(out),
			Status:      campaign.RecipientPending,
		})
	}
	if len(out) > MaxRecipients {
		return Result{}, &RecipientLimitExceededError{Count: len(out)}
	}
	return Result{Recipients: out}, nil
}

// NormalizePhone strips every character except digits and a single
// leading +.
func NormalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if p == "+" {
		return ""
	}
	return p
}

// splitRow splits one delimited line on commas, honoring double-quoted
// fields: embedded commas inside quotes are preserved and "" inside a
// quoted field is an escaped quote.
func splitRow(row string) []string {
	var values []string
	var current strings.Builder
	inQuotes := false
	for i := 0; i < len(row); i++ {
		c := row[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(row) && row[i+1] == '"' {
				current.WriteByte('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	values = append(values, strings.TrimSpace(current.String()))
	return values
}

func field(values []string, idx int) string {
	if idx < 0 || idx >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[idx])
}

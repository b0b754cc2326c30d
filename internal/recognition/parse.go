package recognition

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

// parseCandidates extracts candidates from a provider's text response. A
// malformed or schema-violating payload is non-fatal and yields zero
// candidates: the user can still add items manually.
func parseCandidates(text string) []Candidate {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Providers occasionally wrap the object in prose; take the outermost
	// object boundaries.
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")
	if startIdx == -1 || endIdx < startIdx {
		slog.Debug("No JSON object in recognition response")
		return nil
	}
	text = text[startIdx : endIdx+1]

	var resp struct {
		Items []Candidate `json:"items"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		slog.Debug("Unparsable recognition response", "error", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(resp.Items))
	for _, c := range resp.Items {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			continue
		}
		c.ExpiryDate = normalizeDate(c.ExpiryDate)
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// normalizeDate keeps only well-formed dates; anything else becomes empty so
// the commit-time default-date policy kicks in.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

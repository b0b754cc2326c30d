package inventory

import "strings"

// FilterItems returns the items matching the query and category, preserving
// their original relative order. The query is matched case-insensitively as a
// substring of name and description; an empty query matches everything.
// CategoryAll (or an empty category) matches every category.
func FilterItems(items []Item, query string, category Category) []Item {
	query = strings.ToLower(strings.TrimSpace(query))

	matched := make([]Item, 0, len(items))
	for _, item := range items {
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Name), query) &&
			!strings.Contains(strings.ToLower(item.Description), query) {
			continue
		}
		if category != "" && category != CategoryAll && item.Category != category {
			continue
		}
		matched = append(matched, item)
	}
	return matched
}

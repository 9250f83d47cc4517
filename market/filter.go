package market

import "strings"

// Tab selects the availability slice of the listings screen.
type Tab string

const (
	TabAll       Tab = "all"
	TabAvailable Tab = "available"
	TabRented    Tab = "rented"
)

// Filter narrows assembled listings by availability tab and a free-text
// query. The query is a case-insensitive substring match over title and
// location; an empty query matches everything. An unknown tab behaves like
// TabAll.
func Filter(views []PropertyView, tab Tab, query string) []PropertyView {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]PropertyView, 0, len(views))
	for _, v := range views {
		switch tab {
		case TabAvailable:
			if !v.Available {
				continue
			}
		case TabRented:
			if v.Available {
				continue
			}
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(v.Title), needle) &&
			!strings.Contains(strings.ToLower(v.Location), needle) {
			continue
		}
		out = append(out, v)
	}
	return out
}

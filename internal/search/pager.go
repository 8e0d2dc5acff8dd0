package search

// Pager tracks opaque cursor based pagination. The empty cursor is the first
// page sentinel for both current and next.
type Pager struct {
	seen    []string
	current string
	next    string
}

// ResetToFirstPage forgets every visited cursor.
func (p *Pager) ResetToFirstPage() {
	p.seen = nil
	p.current = ""
	p.next = ""
}

// AdvanceToNextPage promotes the server supplied next cursor to current.
// It returns false when there is no next page.
func (p *Pager) AdvanceToNextPage() bool {
	if p.next == "" {
		return false
	}
	p.seen = append(p.seen, p.current)
	p.current = p.next
	p.next = ""
	return true
}

// RetreatToPreviousPage restores the cursor that was current before the last
// advance. It returns false when already on the first visited page.
func (p *Pager) RetreatToPreviousPage() bool {
	if len(p.seen) == 0 {
		return false
	}
	last := len(p.seen) - 1
	p.current = p.seen[last]
	p.seen = p.seen[:last]
	p.next = ""
	return true
}

// RecordServerCursor stores the next cursor returned by a successful search.
func (p *Pager) RecordServerCursor(next string) {
	p.next = next
}

// Current returns the cursor of the displayed page; empty for the first page.
func (p *Pager) Current() string { return p.current }

// Next returns the cursor of the following page; empty when none.
func (p *Pager) Next() string { return p.next }

// HasPreviousPage reports whether RetreatToPreviousPage would succeed.
func (p *Pager) HasPreviousPage() bool { return len(p.seen) > 0 }

// HasNextPage reports whether AdvanceToNextPage would succeed.
func (p *Pager) HasNextPage() bool { return p.next != "" }

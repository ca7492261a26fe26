package model

// Caller is the authenticated identity a request acts on behalf of.
// The zero value is an anonymous caller.
type Caller struct {
	ID          string
	DisplayName string
}

func (c Caller) Authenticated() bool {
	return c.ID != ""
}

func (c Caller) Snapshot() Author {
	return Author{ID: c.ID, DisplayName: c.DisplayName}
}

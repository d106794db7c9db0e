package store

// ContextRecord is the stored form of a conversation context: an opaque
// JSON payload keyed by (user, session), with the update timestamp broken
// out for age-based cleanup sweeps.
type ContextRecord struct {
	UserID    string
	SessionID string
	Payload   []byte
	UpdatedTs int64
}

// FindContextRecord filters context lookups. Nil fields match everything.
type FindContextRecord struct {
	UserID    *string
	SessionID *string
}

// DeleteContextRecord removes a single session when SessionID is set, or
// every session belonging to UserID when it is nil.
type DeleteContextRecord struct {
	UserID    string
	SessionID *string
}

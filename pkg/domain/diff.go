package domain

// SessionDiff represents the changes between two snapshots of a session.
// It is designed to be serialized to JSON for partial updates on the client.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	CurrentNodeID *string        `json:"current_node_id,omitempty"`
	Status        *SessionStatus `json:"status,omitempty"`

	// Appended holds transcript entries added since the old snapshot.
	// Transcripts are append-only, so a length comparison is enough.
	Appended []ChatMessage `json:"appended,omitempty"`

	// AIHistoryLen is set when the AI history grew.
	AIHistoryLen *int `json:"ai_history_len,omitempty"`
}

// Diff calculates the difference between oldSession and newSession.
// If oldSession is nil, it returns a diff representing the entire newSession (initial load).
func Diff(oldSession, newSession *Session) *SessionDiff {
	if newSession == nil {
		return nil
	}

	diff := &SessionDiff{
		SessionID: newSession.ID,
	}

	if oldSession == nil || oldSession.CurrentNode.ID != newSession.CurrentNode.ID {
		id := newSession.CurrentNode.ID
		diff.CurrentNodeID = &id
	}
	if oldSession == nil || oldSession.Status != newSession.Status {
		status := newSession.Status
		diff.Status = &status
	}

	oldLen := 0
	oldAI := 0
	if oldSession != nil {
		oldLen = len(oldSession.Transcript)
		oldAI = len(oldSession.AIHistory)
	}
	if len(newSession.Transcript) > oldLen {
		diff.Appended = append([]ChatMessage(nil), newSession.Transcript[oldLen:]...)
	}
	if len(newSession.AIHistory) > oldAI {
		n := len(newSession.AIHistory)
		diff.AIHistoryLen = &n
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		len(d.Appended) == 0 &&
		d.AIHistoryLen == nil
}

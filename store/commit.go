package store

// Commit is the full set of mutations produced by one turn.
//
// Nil or zero fields leave the session unchanged. Events are appended in order
// before the status change, so a terminal Status closes the EventLog last.
type Commit struct {
	// ExpectedVersion guards against stale writes. Zero disables the check.
	ExpectedVersion int64

	TurnID string
	Reply  string

	Events    []Event
	Facts     map[string]string
	Signal    *EmergencySignal
	Procedure *Procedure
	// Step sets CurrentStep. Must address the procedure in effect after this commit.
	Step   *int
	Status Status
	// CloseReason is recorded on the closing event when Status is terminal.
	CloseReason string

	// Clarify counts one more clarifying prompt.
	Clarify bool
	// ResetClarifications clears the consecutive counter after forward progress.
	ResetClarifications bool
}

func (s *Store) apply(sess *Session, c *Commit) error {
	proc := sess.Procedure
	if c.Procedure != nil {
		proc = c.Procedure
	}
	if c.Step != nil && *c.Step != StepNone && !proc.ValidIndex(*c.Step) {
		return ErrInvalidStep
	}

	for _, ev := range c.Events {
		s.appendEvent(sess, ev)
	}
	for k, v := range c.Facts {
		if k != "" {
			setFact(sess, k, v)
		}
	}
	if c.Signal != nil {
		sig := *c.Signal
		sess.Signal = &sig
	}
	if c.Procedure != nil {
		sess.Procedure = c.Procedure
		if c.Step == nil {
			sess.CurrentStep = StepNone
		}
	}
	if c.Step != nil {
		sess.CurrentStep = *c.Step
	}
	if c.ResetClarifications {
		sess.Clarifications = 0
	}
	if c.Clarify {
		sess.Clarifications++
		sess.TotalClarifications++
	}
	if c.TurnID != "" {
		sess.LastTurnID = c.TurnID
	}
	if c.Reply != "" {
		sess.LastReply = c.Reply
	}

	switch {
	case c.Status == "":
	case c.Status.IsTerminal():
		s.terminate(sess, c.Status, c.CloseReason)
	default:
		sess.Status = c.Status
	}
	return nil
}

package optimistic

// ActionKind names a user action that changes server state.
type ActionKind string

const (
	ActionPredictionVote ActionKind = "prediction-vote"
	ActionPredictionBack ActionKind = "prediction-back"
	ActionCommentVote    ActionKind = "comment-vote"
	ActionCommentPost    ActionKind = "comment-post"
	ActionCommentDelete  ActionKind = "comment-delete"
	ActionGroupJoin      ActionKind = "group-join"
	ActionGroupLeave     ActionKind = "group-leave"
)

// Mode says whether local state changes before or after the server agrees.
type Mode int

const (
	Confirmed Mode = iota
	Optimistic
)

func (m Mode) String() string {
	if m == Optimistic {
		return "optimistic"
	}
	return "confirmed"
}

// Policy maps action kinds to their update mode. Kinds not listed are
// Confirmed.
type Policy map[ActionKind]Mode

// DefaultPolicy makes high-frequency, low-risk actions optimistic and keeps
// structural ones confirmed.
func DefaultPolicy() Policy {
	return Policy{
		ActionPredictionVote: Optimistic,
		ActionPredictionBack: Optimistic,
		ActionCommentVote:    Confirmed,
		ActionCommentPost:    Confirmed,
		ActionCommentDelete:  Confirmed,
		ActionGroupJoin:      Confirmed,
		ActionGroupLeave:     Confirmed,
	}
}

func (p Policy) Mode(kind ActionKind) Mode {
	return p[kind]
}

func (p Policy) IsOptimistic(kind ActionKind) bool {
	return p.Mode(kind) == Optimistic
}

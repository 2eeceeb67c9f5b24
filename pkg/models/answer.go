package models

// AnswerKind distinguishes the three states of a user's last reply.
type AnswerKind int

const (
	// AnswerUnset means no reply has been recorded since the last reset.
	AnswerUnset AnswerKind = iota
	// AnswerYes is a positive reply.
	AnswerYes
	// AnswerNo is a negative reply.
	AnswerNo
)

// Answer is the tagged last-reply value held by a session. An unset answer
// is distinct from a yes/no with empty text.
type Answer struct {
	Kind AnswerKind
	Text string
}

// Yes builds a positive answer carrying the user's comment.
func Yes(text string) Answer { return Answer{Kind: AnswerYes, Text: text} }

// No builds a negative answer carrying the user's comment.
func No(text string) Answer { return Answer{Kind: AnswerNo, Text: text} }

// IsYes reports whether the answer is a recorded positive reply.
func (a Answer) IsYes() bool { return a.Kind == AnswerYes }

// IsNo reports whether the answer is a recorded negative reply.
func (a Answer) IsNo() bool { return a.Kind == AnswerNo }

// IsSet reports whether any reply has been recorded.
func (a Answer) IsSet() bool { return a.Kind != AnswerUnset }

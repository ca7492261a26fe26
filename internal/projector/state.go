package projector

import (
	"slices"
	"strconv"

	"overflow.app/questions/internal/domain"
	"overflow.app/questions/internal/model"
	"overflow.app/questions/internal/search"
)

// FieldGroup is a set of document fields written together by one kind of event.
// Each group carries its own version so unrelated events never shadow each other.
type FieldGroup string

const (
	FieldGroupContent  FieldGroup = "content"  // title, content, tag
	FieldGroupAnswers  FieldGroup = "answers"  // answerCount
	FieldGroupAccepted FieldGroup = "accepted" // hasAcceptedAnswer
)

type Outcome string

const (
	OutcomeApplied          Outcome = "applied"
	OutcomeBuffered         Outcome = "buffered"
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	OutcomeSkippedStale     Outcome = "skipped_stale"
	OutcomeSkippedDeleted   Outcome = "skipped_deleted"
	OutcomeSkippedUnknown   Outcome = "skipped_unknown"
)

// recentWindow bounds how many applied sequences a state remembers.
const recentWindow = 64

// State is everything the projector knows about one question.
// Revision counts state changes; Synced is the last revision pushed to the index.
// Recent holds the latest applied sequences so a redelivery is told apart from a stale event.
type State struct {
	Document search.Document      `json:"document"`
	Versions map[FieldGroup]int64 `json:"versions"`
	Created  bool                 `json:"created"`
	Deleted  bool                 `json:"deleted"`
	Revision int64                `json:"revision"`
	Synced   int64                `json:"synced"`
	Recent   []int64              `json:"recent,omitempty"`
}

func newState(id string) State {
	return State{
		Document: search.Document{ID: id, Tag: []string{}},
		Versions: map[FieldGroup]int64{},
	}
}

// NeedsSync reports whether the index lags behind the state.
func (s State) NeedsSync() bool {
	return s.Synced < s.Revision && (s.Created || s.Deleted)
}

// Apply merges one event delivered with sequence seq into the state.
// It is deterministic: applying the same (seq, event) again is a no-op.
func (s *State) Apply(seq int64, event domain.Event) Outcome {
	if s.Deleted {
		if _, ok := event.(domain.QuestionDeleted); ok {
			return OutcomeSkippedDuplicate
		}
		return OutcomeSkippedDeleted
	}

	switch e := event.(type) {
	case domain.QuestionDeleted:
		s.Deleted = true
		s.Revision++
		s.remember(seq)
		return OutcomeApplied

	case domain.QuestionCreated:
		if s.Created {
			return OutcomeSkippedDuplicate
		}
		s.Created = true
		s.Document.CreatedAt = e.CreatedAt.Unix()
		s.set(FieldGroupContent, seq, func(d *search.Document) {
			d.Title = e.Title
			d.Content = e.Content
			d.Tag = slices.Clone(e.Tags)
		})
		s.set(FieldGroupAnswers, seq, func(d *search.Document) { d.AnswerCount = 0 })
		s.set(FieldGroupAccepted, seq, func(d *search.Document) { d.HasAcceptedAnswer = false })
		s.Revision++
		s.remember(seq)
		return OutcomeApplied

	case domain.QuestionUpdated:
		return s.applyGroup(FieldGroupContent, seq, func(d *search.Document) {
			d.Title = e.Title
			d.Content = e.Content
			d.Tag = slices.Clone(e.Tags)
		})

	case domain.AnswerCountUpdated:
		return s.applyGroup(FieldGroupAnswers, seq, func(d *search.Document) {
			d.AnswerCount = e.AnswerCount
		})

	case domain.AnswerAccepted:
		return s.applyGroup(FieldGroupAccepted, seq, func(d *search.Document) {
			d.HasAcceptedAnswer = true
		})
	}

	return OutcomeSkippedUnknown
}

// DocumentOf renders the document a stored question projects to.
func DocumentOf(q model.Question) search.Document {
	tags := slices.Clone(q.Tags)
	if tags == nil {
		tags = []string{}
	}
	return search.Document{
		ID:                strconv.FormatInt(q.ID, 10),
		Title:             q.Title,
		Content:           q.Content,
		Tag:               tags,
		CreatedAt:         q.CreatedAt.Unix(),
		AnswerCount:       q.AnswerCount,
		HasAcceptedAnswer: q.HasAcceptedAnswer,
	}
}

// Restore overwrites every group from a canonical snapshot taken at q.EventSeq.
// Groups already holding a newer version keep it.
func (s *State) Restore(q model.Question) Outcome {
	if s.Deleted {
		return OutcomeSkippedDeleted
	}

	before := s.Document
	wasCreated := s.Created
	seq := q.EventSeq

	s.Created = true
	s.Document.CreatedAt = q.CreatedAt.Unix()
	s.set(FieldGroupContent, seq, func(d *search.Document) {
		d.Title = q.Title
		d.Content = q.Content
		d.Tag = slices.Clone(q.Tags)
	})
	s.set(FieldGroupAnswers, seq, func(d *search.Document) { d.AnswerCount = q.AnswerCount })
	s.set(FieldGroupAccepted, seq, func(d *search.Document) { d.HasAcceptedAnswer = q.HasAcceptedAnswer })

	if wasCreated && before.Equal(s.Document) {
		return OutcomeSkippedDuplicate
	}
	s.Revision++
	return OutcomeApplied
}

func (s *State) applyGroup(g FieldGroup, seq int64, write func(*search.Document)) Outcome {
	if v, ok := s.Versions[g]; ok {
		if seq == v || slices.Contains(s.Recent, seq) {
			return OutcomeSkippedDuplicate
		}
		if seq < v {
			return OutcomeSkippedStale
		}
	}

	s.set(g, seq, write)
	s.Revision++
	s.remember(seq)
	if !s.Created {
		return OutcomeBuffered
	}
	return OutcomeApplied
}

func (s *State) remember(seq int64) {
	if slices.Contains(s.Recent, seq) {
		return
	}
	s.Recent = append(s.Recent, seq)
	if len(s.Recent) > recentWindow {
		s.Recent = slices.Clone(s.Recent[len(s.Recent)-recentWindow:])
	}
}

// set writes the group when seq is not older than its current version.
func (s *State) set(g FieldGroup, seq int64, write func(*search.Document)) {
	if v, ok := s.Versions[g]; ok && seq < v {
		return
	}
	if s.Versions == nil {
		s.Versions = map[FieldGroup]int64{}
	}
	write(&s.Document)
	s.Versions[g] = seq
}

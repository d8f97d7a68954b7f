package models

// SpanKind is the style of a formatting span.
type SpanKind string

const (
	SpanBold   SpanKind = "bold"
	SpanItalic SpanKind = "italic"
)

// Span is a formatting range in rune offsets of the plain message text.
type Span struct {
	Kind   SpanKind `json:"kind"`
	Offset int      `json:"offset"`
	Length int      `json:"length"`
}

// Choice is a voter's answer. Values match the inline keyboard callback data.
type Choice string

const (
	ChoiceYes Choice = "y"
	ChoiceNo  Choice = "n"
)

// ParseChoice maps callback data to a Choice.
func ParseChoice(data string) (Choice, bool) {
	switch Choice(data) {
	case ChoiceYes:
		return ChoiceYes, true
	case ChoiceNo:
		return ChoiceNo, true
	}
	return "", false
}

// Voter is the latest answer of a single user.
type Voter struct {
	Choice      Choice `json:"choice"`
	DisplayName string `json:"display_name"`
}

// Vote is one callback folded into a poll.
type Vote struct {
	UserID      int64
	DisplayName string
	Choice      Choice
}

// Poll holds per-user answers and the tallies derived from them.
type Poll struct {
	Yes   int             `json:"yes"`
	No    int             `json:"no"`
	Users map[int64]Voter `json:"users"`
	// Order lists user ids by first vote; the roster is rendered in this order.
	Order []int64 `json:"order"`
}

// Apply records v, overwriting any previous answer by the same user.
func (p *Poll) Apply(v Vote) {
	if p.Users == nil {
		p.Users = make(map[int64]Voter)
	}
	if _, ok := p.Users[v.UserID]; !ok {
		p.Order = append(p.Order, v.UserID)
	}
	p.Users[v.UserID] = Voter{Choice: v.Choice, DisplayName: v.DisplayName}
}

// Recount recomputes Yes and No from Users.
func (p *Poll) Recount() {
	p.Yes, p.No = 0, 0
	for _, u := range p.Users {
		switch u.Choice {
		case ChoiceYes:
			p.Yes++
		case ChoiceNo:
			p.No++
		}
	}
}

// Names returns display names of users who answered c, in first-vote order.
func (p Poll) Names(c Choice) []string {
	var out []string
	for _, id := range p.Order {
		if u, ok := p.Users[id]; ok && u.Choice == c {
			out = append(out, u.DisplayName)
		}
	}
	return out
}

// Siblings are the three messages of one notification unit.
type Siblings struct {
	Media    int `json:"media"`
	Location int `json:"location"`
	Text     int `json:"text"`
}

// IDs returns the sibling message ids in send order, skipping unset ones.
func (s Siblings) IDs() []int {
	var ids []int
	for _, id := range []int{s.Media, s.Location, s.Text} {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// MessageRecord tracks a sent (or externally discovered) poll message.
type MessageRecord struct {
	ID       int      `json:"id"`
	ChatID   int64    `json:"chat_id"`
	GymID    string   `json:"gym_id,omitempty"`
	Text     string   `json:"text"`
	Spans    []Span   `json:"spans"`
	Poll     Poll     `json:"poll"`
	Siblings Siblings `json:"siblings"`
	// Rendered is the fingerprint of the last render applied remotely.
	Rendered string `json:"-"`
}

// Clone returns a deep copy safe to hand out of the owning store.
func (r MessageRecord) Clone() MessageRecord {
	out := r
	out.Spans = append([]Span(nil), r.Spans...)
	out.Poll.Order = append([]int64(nil), r.Poll.Order...)
	if r.Poll.Users != nil {
		out.Poll.Users = make(map[int64]Voter, len(r.Poll.Users))
		for k, v := range r.Poll.Users {
			out.Poll.Users[k] = v
		}
	}
	return out
}

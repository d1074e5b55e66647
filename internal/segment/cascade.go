package segment

import "github.com/apresai/paperq/internal/question"

// Per-group record caps. These match the paper layout the parsers were
// tuned on (ten MCQs, five short and five long answers).
const (
	MaxMultipleChoice = 10
	MaxShortAnswer    = 5
	MaxLongAnswer     = 5
)

// Strategy turns one section into records. An empty result means the
// strategy did not recognise the layout.
type Strategy struct {
	Name  string
	Parse func(section string) []question.Record
}

// runCascade returns the result of the first strategy that yields records,
// along with that strategy's name. It returns nil and "" when every strategy
// comes back empty.
func runCascade(section string, strategies []Strategy) ([]question.Record, string) {
	for _, s := range strategies {
		if recs := s.Parse(section); len(recs) > 0 {
			return recs, s.Name
		}
	}
	return nil, ""
}

// collector numbers records in emission order and enforces the group cap.
// Blank texts are dropped without consuming a number.
type collector struct {
	group question.Group
	limit int
	out   []question.Record
}

func newCollector(g question.Group, limit int) *collector {
	return &collector{group: g, limit: limit}
}

// add appends a record and reports whether there is room for more.
func (c *collector) add(text string, options []string) bool {
	if c.full() {
		return false
	}
	if text = collapse(text); text != "" {
		c.out = append(c.out, question.New(c.group, len(c.out)+1, text, options))
	}
	return !c.full()
}

func (c *collector) full() bool {
	return len(c.out) >= c.limit
}

func (c *collector) records() []question.Record {
	return c.out
}

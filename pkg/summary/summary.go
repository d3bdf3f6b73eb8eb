package summary

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"
)

var (
	ErrInvalidFormat   = errors.New("invalid summary format")
	ErrInvalidMaxItems = errors.New("max items must be positive")
)

// DefaultMaxItems is used when Options.MaxItems is zero.
const DefaultMaxItems = 10

// Item is one notification as it appears in a digest.
type Item struct {
	ID        string    `json:"id,omitempty"`
	EventKey  string    `json:"event_key"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Source yields items in delivery order.
type Source interface {
	Items() iter.Seq[Item]
}

// Counter is implemented by sources that know their size without being
// iterated.
type Counter interface {
	Count() int
}

// Slice is a materialized Source.
type Slice []Item

func (s Slice) Items() iter.Seq[Item] { return slices.Values(s) }

func (s Slice) Count() int { return len(s) }

// Seq adapts a plain iterator.
type Seq iter.Seq[Item]

func (s Seq) Items() iter.Seq[Item] { return iter.Seq[Item](s) }

type Options struct {
	MaxItems     int
	GroupByEvent bool
	Format       Format
}

// Entry is an emitted item. Count is the size of its group, or 1 in a flat
// summary.
type Entry struct {
	Item
	Count int `json:"count"`
}

// Summary is the result of Summarize. More reports whether the source held
// more items than there are entries; in grouped mode every item may still be
// counted by an entry, see Remaining.
type Summary struct {
	Entries []Entry `json:"items"`
	Total   int     `json:"total"`
	More    bool    `json:"more"`
	Grouped bool    `json:"grouped"`
	Format  Format  `json:"-"`
	Body    string  `json:"-"`
}

// covered is the number of source items represented by the entries.
func (s Summary) covered() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Count
	}
	return n
}

// Remaining is the number of source items not represented by any entry.
func (s Summary) Remaining() int { return max(s.Total-s.covered(), 0) }

// Summarize builds a summary and renders its body in opts.Format. It does
// no I/O and does not modify the source.
func Summarize(src Source, opts Options) (Summary, error) {
	if opts.MaxItems < 0 {
		return Summary{}, fmt.Errorf("%w: %d", ErrInvalidMaxItems, opts.MaxItems)
	}
	if opts.MaxItems == 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if !opts.Format.Valid() {
		return Summary{}, fmt.Errorf("%w: %q", ErrInvalidFormat, opts.Format)
	}

	var s Summary
	if opts.GroupByEvent {
		s = grouped(src, opts.MaxItems)
	} else {
		s = flat(src, opts.MaxItems)
	}
	s.More = s.Total > len(s.Entries)
	s.Format = opts.Format

	body, err := Render(s, opts.Format)
	if err != nil {
		return Summary{}, err
	}
	s.Body = body
	return s, nil
}

func flat(src Source, limit int) Summary {
	s := Summary{Entries: make([]Entry, 0, limit)}
	counter, counted := src.(Counter)
	for it := range src.Items() {
		if len(s.Entries) < limit {
			s.Entries = append(s.Entries, Entry{Item: it, Count: 1})
			s.Total++
			continue
		}
		if counted {
			break
		}
		s.Total++
	}
	if counted {
		s.Total = max(counter.Count(), len(s.Entries))
	}
	return s
}

func grouped(src Source, limit int) Summary {
	s := Summary{Grouped: true}
	index := make(map[string]int)
	for it := range src.Items() {
		s.Total++
		if i, ok := index[it.EventKey]; ok {
			if i >= 0 {
				s.Entries[i].Count++
			}
			continue
		}
		if len(s.Entries) < limit {
			index[it.EventKey] = len(s.Entries)
			s.Entries = append(s.Entries, Entry{Item: it, Count: 1})
		} else {
			index[it.EventKey] = -1
		}
	}
	return s
}

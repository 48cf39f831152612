package filter

import (
	"fmt"
	"sort"
)

// Next continues the chain.
type Next func(*Context) error

// Filter is one stage of the request pipeline. A filter either calls next
// and may act on the response afterwards, or ends the request by returning
// an error or writing a response itself.
type Filter interface {
	Name() string
	// Precedence orders filters. Lower values run first.
	Precedence() int
	Handle(c *Context, next Next) error
}

// Chain is an immutable, ordered set of filters.
type Chain struct {
	filters []Filter
}

// NewChain sorts filters by precedence. Two filters may not share a
// precedence.
func NewChain(filters ...Filter) (*Chain, error) {
	sorted := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			sorted = append(sorted, f)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Precedence() < sorted[j].Precedence()
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Precedence() == sorted[i-1].Precedence() {
			return nil, fmt.Errorf("filters %s and %s share precedence %d",
				sorted[i-1].Name(), sorted[i].Name(), sorted[i].Precedence())
		}
	}

	return &Chain{filters: sorted}, nil
}

// Execute runs c through every filter and then terminal. A nil terminal
// ends the chain successfully.
func (ch *Chain) Execute(c *Context, terminal Next) error {
	return ch.run(0, c, terminal)
}

func (ch *Chain) run(i int, c *Context, terminal Next) error {
	if i == len(ch.filters) {
		if terminal == nil {
			return nil
		}
		return terminal(c)
	}
	return ch.filters[i].Handle(c, func(c *Context) error {
		return ch.run(i+1, c, terminal)
	})
}

// Names returns the filter names in execution order.
func (ch *Chain) Names() []string {
	names := make([]string, len(ch.filters))
	for i, f := range ch.filters {
		names[i] = f.Name()
	}
	return names
}

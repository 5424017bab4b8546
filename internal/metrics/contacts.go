package metrics

import (
	"github.com/san-kum/demsim/internal/dem"
)

// Contacts is the mean number of real contacts.
type Contacts struct {
	name    string
	sum     int
	samples int
}

func NewContacts() *Contacts {
	return &Contacts{
		name: "contacts",
	}
}

func (c *Contacts) Name() string {
	return c.name
}

func (c *Contacts) Observe(f *dem.Field, t float64) {
	c.sum += f.Contacts().RealCount()
	c.samples++
}

func (c *Contacts) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return float64(c.sum) / float64(c.samples)
}

func (c *Contacts) Reset() {
	c.sum = 0
	c.samples = 0
}

// Nodes is the largest number of registered nodes seen.
type Nodes struct {
	max int
}

func NewNodes() *Nodes { return &Nodes{} }

func (n *Nodes) Name() string { return "nodes" }

func (n *Nodes) Observe(f *dem.Field, t float64) {
	n.max = max(n.max, f.NodeCount())
}

func (n *Nodes) Value() float64 { return float64(n.max) }

func (n *Nodes) Reset() { n.max = 0 }

// Package directconnection provides a connection that delivers messages
// between plugged-in ports without latency.
package directconnection

import (
	"log"

	"github.com/sarchlab/lanecoalescer/sim"
)

// Comp is a DirectConnection connects two components without latency
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	nextPortID int
	ports      []sim.Port
	byRemote   map[sim.RemotePort]sim.Port
}

// PlugIn marks the port connects to this DirectConnection.
func (c *Comp) PlugIn(port sim.Port) {
	c.Lock()
	defer c.Unlock()

	if _, found := c.byRemote[port.AsRemote()]; found {
		log.Panicf("port %s is already plugged into %s",
			port.AsRemote(), c.Name())
	}

	c.ports = append(c.ports, port)
	c.byRemote[port.AsRemote()] = port

	port.SetConnection(c)
}

// Unplug marks the port no longer connects to this DirectConnection.
func (c *Comp) Unplug(port sim.Port) {
	c.Lock()
	defer c.Unlock()

	delete(c.byRemote, port.AsRemote())

	for i, p := range c.ports {
		if p == port {
			c.ports = append(c.ports[:i], c.ports[i+1:]...)
			break
		}
	}

	if c.nextPortID >= len(c.ports) {
		c.nextPortID = 0
	}
}

// NotifyAvailable is called by a port to notify that the connection can
// deliver to the port again.
func (c *Comp) NotifyAvailable(p sim.Port) {
	for _, port := range c.ports {
		if port == p {
			continue
		}

		port.NotifyAvailable()
	}

	c.TickLater()
}

// NotifySend is called by a port to notify that the connection can start
// to tick now
func (c *Comp) NotifySend() {
	c.TickLater()
}

// Tick delivers messages.
func (c *Comp) Tick() bool {
	return c.MiddlewareHolder.Tick()
}

type middleware struct {
	*Comp
}

// Tick visits the ports round-robin, starting from a different port every
// cycle.
func (m *middleware) Tick() bool {
	if len(m.ports) == 0 {
		return false
	}

	madeProgress := false

	for i := 0; i < len(m.ports); i++ {
		portID := (i + m.nextPortID) % len(m.ports)
		madeProgress = m.forwardMany(m.ports[portID]) || madeProgress
	}

	m.nextPortID = (m.nextPortID + 1) % len(m.ports)

	return madeProgress
}

func (m *middleware) forwardMany(port sim.Port) bool {
	madeProgress := false

	for {
		head := port.PeekOutgoing()
		if head == nil {
			break
		}

		dst, found := m.byRemote[head.Meta().Dst]
		if !found {
			log.Panicf("%s: msg %s is sent to %s, which is not connected",
				m.Name(), head.Meta().ID, head.Meta().Dst)
		}

		if err := dst.Deliver(head); err != nil {
			break
		}

		port.RetrieveOutgoing()

		madeProgress = true
	}

	return madeProgress
}

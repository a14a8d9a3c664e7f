package wire

type pipe struct {
	to *Broker
}

func (p pipe) Deliver(f Frame) error {
	p.to.Dispatch(f)
	return nil
}

// Connect joins two brokers in memory. Delivery is synchronous: a send
// reaches the remote scheduler's queue before Send returns.
func Connect(a, b *Broker) {
	a.SetTransport(pipe{to: b})
	b.SetTransport(pipe{to: a})
}

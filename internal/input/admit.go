package input

// Admission is the outcome of running a control frame through the Gate and the
// Validator.
type Admission struct {
	Accepted   bool
	Drop       DropReason
	Violation  ValidationReason
	Warn       bool
	Disconnect bool
}

// Pipeline chains the gate and the validator for one connection pool.
type Pipeline struct {
	Gate      *Gate
	Validator *Validator
}

// Admit checks sequencing and freshness first, then the control values. Accepted
// controls are committed as the client's new baseline.
func (p Pipeline) Admit(clientID string, env Envelope) Admission {
	//1.- Transport level checks.
	if d := p.Gate.Evaluate(env.Frame(clientID)); !d.Accepted {
		return Admission{Drop: d.Reason}
	}
	//2.- Value checks.
	v := p.Validator.Validate(clientID, env.Controls)
	if !v.Accepted {
		return Admission{Violation: v.Reason, Warn: v.Warn, Disconnect: v.Disconnect}
	}
	p.Validator.Commit(clientID, env.Controls)
	return Admission{Accepted: true}
}

// Forget drops every per-client record.
func (p Pipeline) Forget(clientID string) {
	p.Gate.Forget(clientID)
	p.Validator.Forget(clientID)
}

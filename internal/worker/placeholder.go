package worker

import "context"

// Placeholder stands in for capabilities that are announced but not
// yet built. It always completes with a fixed notice.
type Placeholder struct {
	name    string
	message string
}

func NewPlaceholder(name, message string) *Placeholder {
	if message == "" {
		message = "This capability is coming soon."
	}
	return &Placeholder{name: name, message: message}
}

func (p *Placeholder) Execute(ctx context.Context, task Task) (Result, error) {
	return Result{Status: StatusPlaceholder, Result: p.message}, nil
}

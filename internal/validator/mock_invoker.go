package validator

import (
	"context"

	"github.com/stretchr/testify/mock"
)

func NewInvokerMock() *InvokerMock {
	return &InvokerMock{}
}

// InvokerMock is an oracle.Invoker driven by testify expectations.
type InvokerMock struct {
	mock.Mock
}

func (m *InvokerMock) Invoke(ctx context.Context, prompt string) (string, error) {
	args := m.MethodCalled("Invoke", ctx, prompt)
	return args.String(0), args.Error(1)
}

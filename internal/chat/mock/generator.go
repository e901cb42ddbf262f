package mock

import (
	context "context"
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// MockResponseGenerator is a mock of ResponseGenerator interface.
type MockResponseGenerator struct {
	ctrl     *gomock.Controller
	recorder *MockResponseGeneratorMockRecorder
	isgomock struct{}
}

// MockResponseGeneratorMockRecorder is the mock recorder for MockResponseGenerator.
type MockResponseGeneratorMockRecorder struct {
	mock *MockResponseGenerator
}

// NewMockResponseGenerator creates a new mock instance.
func NewMockResponseGenerator(ctrl *gomock.Controller) *MockResponseGenerator {
	mock := &MockResponseGenerator{ctrl: ctrl}
	mock.recorder = &MockResponseGeneratorMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockResponseGenerator) EXPECT() *MockResponseGeneratorMockRecorder {
	return m.recorder
}

// Generate mocks base method.
func (m *MockResponseGenerator) Generate(ctx context.Context, accountID, message string) (string, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Generate", ctx, accountID, message)
	ret0, _ := ret[0].(string)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Generate indicates an expected call of Generate.
func (mr *MockResponseGeneratorMockRecorder) Generate(ctx, accountID, message any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Generate", reflect.TypeOf((*MockResponseGenerator)(nil).Generate), ctx, accountID, message)
}

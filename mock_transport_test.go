// Hand-maintained mock in MockGen's output shape.
// Source: transport.go

package snmpengine

import (
	"reflect"
	"time"

	"github.com/golang/mock/gomock"
)

// MockTransportDispatcher is a mock of the TransportDispatcher interface,
// hand-maintained in the shape mockgen would produce (this module vendors
// no go:generate toolchain run, so the generated file is committed as if
// produced by `mockgen -source=transport.go`).
type MockTransportDispatcher struct {
	ctrl     *gomock.Controller
	recorder *MockTransportDispatcherMockRecorder
}

type MockTransportDispatcherMockRecorder struct {
	mock *MockTransportDispatcher
}

func NewMockTransportDispatcher(ctrl *gomock.Controller) *MockTransportDispatcher {
	mock := &MockTransportDispatcher{ctrl: ctrl}
	mock.recorder = &MockTransportDispatcherMockRecorder{mock}
	return mock
}

func (m *MockTransportDispatcher) EXPECT() *MockTransportDispatcherMockRecorder {
	return m.recorder
}

func (m *MockTransportDispatcher) RegisterRecvCallback(fn RecvCallback) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "RegisterRecvCallback", fn)
}

func (mr *MockTransportDispatcherMockRecorder) RegisterRecvCallback(fn interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RegisterRecvCallback", reflect.TypeOf((*MockTransportDispatcher)(nil).RegisterRecvCallback), fn)
}

func (m *MockTransportDispatcher) UnregisterRecvCallback() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "UnregisterRecvCallback")
}

func (mr *MockTransportDispatcherMockRecorder) UnregisterRecvCallback() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UnregisterRecvCallback", reflect.TypeOf((*MockTransportDispatcher)(nil).UnregisterRecvCallback))
}

func (m *MockTransportDispatcher) RegisterTimerCallback(interval time.Duration, fn TimerCallback) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "RegisterTimerCallback", interval, fn)
}

func (mr *MockTransportDispatcherMockRecorder) RegisterTimerCallback(interval, fn interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RegisterTimerCallback", reflect.TypeOf((*MockTransportDispatcher)(nil).RegisterTimerCallback), interval, fn)
}

func (m *MockTransportDispatcher) UnregisterTimerCallback() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "UnregisterTimerCallback")
}

func (mr *MockTransportDispatcherMockRecorder) UnregisterTimerCallback() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UnregisterTimerCallback", reflect.TypeOf((*MockTransportDispatcher)(nil).UnregisterTimerCallback))
}

func (m *MockTransportDispatcher) SendMessage(wholeMsg []byte, transportDomain, transportAddress string) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "SendMessage", wholeMsg, transportDomain, transportAddress)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportDispatcherMockRecorder) SendMessage(wholeMsg, transportDomain, transportAddress interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SendMessage", reflect.TypeOf((*MockTransportDispatcher)(nil).SendMessage), wholeMsg, transportDomain, transportAddress)
}

func (m *MockTransportDispatcher) RunDispatcher(stop <-chan struct{}) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RunDispatcher", stop)
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportDispatcherMockRecorder) RunDispatcher(stop interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RunDispatcher", reflect.TypeOf((*MockTransportDispatcher)(nil).RunDispatcher), stop)
}

func (m *MockTransportDispatcher) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	ret0, _ := ret[0].(error)
	return ret0
}

func (mr *MockTransportDispatcherMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockTransportDispatcher)(nil).Close))
}

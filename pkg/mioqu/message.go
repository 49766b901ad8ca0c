package mioqu

import (
	"github.com/inre/mioqu/pkg/mioqu/reactor"
	"go.opentelemetry.io/otel/trace"
)

// Token names one processor slot. See reactor.Token.
type Token = reactor.Token

// EventSet is a set of readiness events. See reactor.EventSet.
type EventSet = reactor.EventSet

// Interest events for Loop.Register. Error and hangup are always reported;
// test for them with EventSet.IsError and EventSet.IsHangup.
const (
	Readable = reactor.Readable
	Writable = reactor.Writable
)

// Timeout is the timer payload carried by a queue's reactor: the processor
// that armed it and the handler's own payload.
type Timeout[T any] struct {
	Token   Token
	Payload T
}

type messageKind uint8

const (
	messageUser messageKind = iota
	messageInitialize
	messageRegister
	messageUnregister
)

// Message is the envelope carried by a queue's notification channel. Values
// are built by Run and Binding; the zero Message is a user message for the
// zero token.
type Message[P, M, R any] struct {
	kind  messageKind
	token Token

	// user message
	payload  M
	callback *Callback[R]
	span     trace.SpanContext

	// control messages
	processor P
	ack       chan<- struct{}
	reply     chan<- Token
}

func initializeMessage[P, M, R any](ack chan<- struct{}) Message[P, M, R] {
	return Message[P, M, R]{kind: messageInitialize, ack: ack}
}

func registerMessage[P, M, R any](processor P, reply chan<- Token) Message[P, M, R] {
	return Message[P, M, R]{kind: messageRegister, processor: processor, reply: reply}
}

func unregisterMessage[P, M, R any](token Token) Message[P, M, R] {
	return Message[P, M, R]{kind: messageUnregister, token: token}
}

func userMessage[P, M, R any](token Token, payload M, cb *Callback[R], span trace.SpanContext) Message[P, M, R] {
	return Message[P, M, R]{kind: messageUser, token: token, payload: payload, callback: cb, span: span}
}

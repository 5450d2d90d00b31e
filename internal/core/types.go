// Package core defines core types with zero external dependencies.
package core

// Field is an optionally-present value delivered by the capture engine.
// The zero value is an absent field.
type Field[T any] struct {
	Value   T
	Present bool
}

// Some returns a present field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Present: true}
}

// None returns an absent field.
func None[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Present
}

// RecordType is the kind of HTTP message a record describes.
type RecordType uint8

const (
	RecordData RecordType = iota
	RecordRequest
	RecordResponse
)

// Wire tokens used in the record stream's type column.
const (
	TokenRequest  = "req"
	TokenResponse = "rep"
	TokenData     = "data"
)

// Token returns the record stream token for t.
func (t RecordType) Token() string {
	switch t {
	case RecordRequest:
		return TokenRequest
	case RecordResponse:
		return TokenResponse
	default:
		return TokenData
	}
}

func (t RecordType) String() string {
	switch t {
	case RecordRequest:
		return "request"
	case RecordResponse:
		return "response"
	default:
		return "data"
	}
}

// ParseRecordType maps a record stream token back to its RecordType.
func ParseRecordType(token string) (RecordType, bool) {
	switch token {
	case TokenRequest:
		return RecordRequest, true
	case TokenResponse:
		return RecordResponse, true
	case TokenData:
		return RecordData, true
	default:
		return RecordData, false
	}
}

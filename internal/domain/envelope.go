package domain

// Business codes carried in the envelope.
const (
	CodeOK          = 0
	CodeJobNotFound = -22
)

// Envelope is the uniform wrapper of every business response. A nonzero Code
// is a business failure, distinct from transport failures which surface as
// errors.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    T      `json:"data"`
}

// OK reports business success.
func (e Envelope[T]) OK() bool {
	return e.Code == CodeOK
}

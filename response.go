package reactor

import "github.com/valyala/bytebufferpool"

// ResponseAssembly turns a handler's raw response payload into a
// framed buffer ready for a Writer: it runs the registered
// ResponseRefiners in order, then hands the refined payload to a
// SizeHeaderWriter for framing.
type ResponseAssembly[T any] struct {
	refiners []ResponseRefiner[T]
	framer   *SizeHeaderWriter
}

// NewResponseAssembly returns a ResponseAssembly applying refiners, in
// order, before framing with framer.
func NewResponseAssembly[T any](framer *SizeHeaderWriter, refiners ...ResponseRefiner[T]) *ResponseAssembly[T] {
	return &ResponseAssembly[T]{framer: framer, refiners: refiners}
}

// Assemble runs payload through the refiner chain and frames the
// result. A refiner error is wrapped as *HandlerException since, from
// the dispatcher's point of view, a failing refiner is indistinguishable
// from a failing handler: no response reaches the wire either way.
func (a *ResponseAssembly[T]) Assemble(value T, payload []byte) (*bytebufferpool.ByteBuffer, error) {
	var err error
	for _, r := range a.refiners {
		payload, err = r.Execute(value, payload)
		if err != nil {
			return nil, &HandlerException{Err: err}
		}
	}
	return a.framer.Frame(payload), nil
}

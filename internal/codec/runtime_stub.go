//go:build !govips || !cgo

package codec

func Startup() error {
	return nil
}

func Shutdown() {}

func newCodec(opts Options) (Codec, error) {
	return NewImaging(opts), nil
}

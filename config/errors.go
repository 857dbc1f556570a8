package config

import "github.com/nabbar/snio/errors"

var (
	errMissingCodec = errors.New(errors.CodeBug, "config: codec is required")
	errBadCapacity  = errors.New(errors.CodeBug, "config: bufferCapacity must be a positive power of two")
	errBadAddress   = errors.New(errors.CodeBug, "config: address is not valid for the selected network")
)

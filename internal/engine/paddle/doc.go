// Package paddle registers the "paddle" engine backend, a cgo binding to
// Paddle Inference with CUDA stream support. It is only compiled with
// -tags paddle and needs libpaddle_inference and libcudart on the linker path;
// pair it with the cuda device runtime (-tags "paddle cuda").
package paddle

//go:build netlib

package main

// Built with -tags netlib, gonum routes level-3 BLAS (the cpu backend's
// dense layer) through the system library instead of its pure Go kernels.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas64.Use(netlib.Implementation{})
	log.Debug().Msg("Using system BLAS (netlib)")
}

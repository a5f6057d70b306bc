//go:build paddle

package main

import (
	_ "github.com/23skdu/longbow-batchstream/internal/engine/paddle"
)

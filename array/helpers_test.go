package array

import "github.com/hupe1980/dualmat/internal/mem"

func asBytes[T any](s []T) []byte { return mem.AsBytes(s) }

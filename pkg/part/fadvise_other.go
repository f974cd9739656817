//go:build !linux

package part

import "os"

func advise(_ *os.File) {}

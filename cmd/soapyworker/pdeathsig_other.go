//go:build !linux

package main

// dieWithParent is linux-only; elsewhere the worker exits when stdin closes.
func dieWithParent() error { return nil }

package main

import "path/filepath"

func cleanAbs(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func dirOf(p string) string { return filepath.Dir(p) }

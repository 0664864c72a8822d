// fileio.go - BIOS/program image loading
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import "os"

// ReadBinaryFile loads a BIOS/program image from path.
func ReadBinaryFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

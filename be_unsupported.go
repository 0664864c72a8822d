//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// Builds for any architecture not listed in le_check.go stop here with a
// compile error. The committed-memory and SH-2 register paths assemble
// multi-byte values by explicit little-endian shifting.
var _ = "Saturnis requires a little-endian architecture" + 1

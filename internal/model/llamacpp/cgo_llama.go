//go:build llama

package llamacpp

// Link against libllama from ./bin and find it next to the binary at run time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../../bin -lllama
*/
import "C"

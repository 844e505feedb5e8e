// Command ns is a local, single-binary code search tool: it maintains a
// BM25 index of a repository under .ns/ and answers ranked queries.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nsearch/ns/cmd/ns/cmd"
	nserr "github.com/nsearch/ns/internal/errors"
)

func main() {
	err := cmd.Execute()
	if err != nil && !errors.Is(err, nserr.ErrNoResults) && nserr.KindOf(err) != nserr.KindPipe {
		fmt.Fprintf(os.Stderr, "ns: %v\n", err)
	}
	os.Exit(nserr.ExitCode(err))
}

package shell

import (
	"fmt"
	"os"

	"github.com/Paintersrp/jobsh/internal/parser"
)

// redirection holds the files opened for one command's "<" and ">" markers.
// A nil file means the stream is inherited.
type redirection struct {
	in  *os.File
	out *os.File
}

// Close releases both files. It is safe to call more than once.
func (r *redirection) Close() {
	if r == nil {
		return
	}
	closeFile(&r.in)
	closeFile(&r.out)
}

// extractRedirections removes every marker and path pair from tokens and opens
// the named files. A later redirection of the same stream replaces an earlier
// one. The remaining tokens keep their relative order.
func extractRedirections(tokens []parser.Token) ([]parser.Token, *redirection, error) {
	redir := &redirection{}
	words := make([]parser.Token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Op != parser.Input && tok.Op != parser.Output {
			words = append(words, tok)
			continue
		}
		if i+1 >= len(tokens) || tokens[i+1].Op != parser.Word {
			redir.Close()
			return nil, nil, fmt.Errorf("%s without a path: %w", tok.Op, parser.ErrMalformed)
		}
		i++
		f, err := openRedirect(tokens[i].Text)
		if err != nil {
			redir.Close()
			return nil, nil, err
		}
		if tok.Op == parser.Input {
			closeFile(&redir.in)
			redir.in = f
		} else {
			closeFile(&redir.out)
			redir.out = f
		}
	}
	return words, redir, nil
}

// openRedirect opens path for either direction, creating it readable and
// writable by the owner only. Existing contents are not truncated.
func openRedirect(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
}

func closeFile(f **os.File) {
	if *f == nil {
		return
	}
	_ = (*f).Close()
	*f = nil
}

// Package parser splits a command line into words and job-control markers.
package parser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed reports a command line the interpreter cannot run.
var ErrMalformed = errors.New("ERROR: Command line is not well formed!")

// Op distinguishes marker tokens from words.
type Op int

const (
	Word Op = iota
	Input
	Output
	Pipe
	Background
)

func (o Op) String() string {
	switch o {
	case Input:
		return "<"
	case Output:
		return ">"
	case Pipe:
		return "|"
	case Background:
		return "&"
	default:
		return "word"
	}
}

// Token is a word or a marker. Quoted text is always a word.
type Token struct {
	Op   Op
	Text string
}

// W builds a word token.
func W(text string) Token { return Token{Op: Word, Text: text} }

// M builds a marker token.
func M(op Op) Token { return Token{Op: op, Text: op.String()} }

func (t Token) String() string { return t.Text }

// Line is one parsed command line.
type Line struct {
	Tokens     []Token
	Background bool
}

// Tokenize splits line on blanks. The characters < > | & always form tokens of
// their own unless quoted.
func Tokenize(line string) ([]Token, error) {
	var (
		tokens []Token
		word   strings.Builder
		inWord bool
		quote  rune
	)
	flush := func() {
		if inWord {
			tokens = append(tokens, W(word.String()))
			word.Reset()
			inWord = false
		}
	}

	for _, r := range line {
		if quote != 0 {
			if r == quote {
				quote = 0
				continue
			}
			word.WriteRune(r)
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
			inWord = true
		case ' ', '\t', '\n', '\r':
			flush()
		case '<':
			flush()
			tokens = append(tokens, M(Input))
		case '>':
			flush()
			tokens = append(tokens, M(Output))
		case '|':
			flush()
			tokens = append(tokens, M(Pipe))
		case '&':
			flush()
			tokens = append(tokens, M(Background))
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote: %w", quote, ErrMalformed)
	}
	flush()
	return tokens, nil
}

// Parse tokenizes line and strips a trailing background marker.
func Parse(line string) (*Line, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	parsed := &Line{Tokens: tokens}
	if n := len(tokens); n > 0 && tokens[n-1].Op == Background {
		parsed.Tokens = tokens[:n-1]
		parsed.Background = true
	}
	for _, tok := range parsed.Tokens {
		if tok.Op == Background {
			return nil, ErrMalformed
		}
	}
	return parsed, nil
}

// IsPipeline reports whether the line has more than one stage.
func (l *Line) IsPipeline() bool {
	for _, tok := range l.Tokens {
		if tok.Op == Pipe {
			return true
		}
	}
	return false
}

// Stages splits the line on pipe markers. An empty stage is malformed.
func (l *Line) Stages() ([][]Token, error) {
	var (
		stages [][]Token
		start  int
	)
	for i, tok := range l.Tokens {
		if tok.Op != Pipe {
			continue
		}
		if i == start {
			return nil, ErrMalformed
		}
		stages = append(stages, l.Tokens[start:i])
		start = i + 1
	}
	if start >= len(l.Tokens) {
		return nil, ErrMalformed
	}
	return append(stages, l.Tokens[start:]), nil
}

// Words returns the text of every token.
func Words(tokens []Token) []string {
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Text
	}
	return words
}

package protocol

import (
	"fmt"
	"strings"
)

type parsePhase uint8

const (
	phaseLine parsePhase = iota
	phaseSize
	phaseDone
)

// Parser decodes a request header incrementally, one byte at a time, so it
// can be driven by input that arrives in arbitrarily small pieces.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	order ByteOrder
	phase parsePhase
	line  []byte
	size  [SizeFieldLen]byte
	sizeN int
	req   Request
}

// NewParser returns a Parser decoding PUT sizes in the given byte order.
func NewParser(order ByteOrder) *Parser {
	return &Parser{order: order, line: make([]byte, 0, 64)}
}

// Reset prepares the parser for a new request.
func (p *Parser) Reset() {
	p.phase = phaseLine
	p.line = p.line[:0]
	p.sizeN = 0
	p.req = Request{}
}

// Feed consumes one byte. It returns true once the header is complete, after
// which Request is valid and further bytes belong to the payload. Any error
// wraps ErrBadRequest and leaves the parser unusable until Reset.
func (p *Parser) Feed(b byte) (bool, error) {
	switch p.phase {
	case phaseLine:
		if b != '\n' {
			if len(p.line) >= MaxHeaderSize {
				return false, ErrHeaderTooLong
			}
			p.line = append(p.line, b)
			return false, nil
		}
		req, err := parseLine(string(p.line))
		if err != nil {
			return false, err
		}
		p.req = req
		if req.Command == CommandPut {
			p.phase = phaseSize
			return false, nil
		}
		p.phase = phaseDone
		return true, nil

	case phaseSize:
		p.size[p.sizeN] = b
		p.sizeN++
		if p.sizeN < SizeFieldLen {
			return false, nil
		}
		p.req.Size = Uint64(p.order, p.size[:])
		p.phase = phaseDone
		return true, nil

	default:
		return true, nil
	}
}

// Done reports whether a complete header has been decoded.
func (p *Parser) Done() bool {
	return p.phase == phaseDone
}

// Buffered reports how many header bytes have been consumed so far.
func (p *Parser) Buffered() int {
	if p.phase == phaseLine {
		return len(p.line)
	}
	return len(p.line) + 1 + p.sizeN
}

// Request returns the decoded header. It is only meaningful once Feed has
// returned true.
func (p *Parser) Request() Request {
	return p.req
}

func parseLine(line string) (Request, error) {
	token, name, hasArg := strings.Cut(line, " ")

	cmd := ParseCommand(token)
	if cmd == CommandUnknown {
		return Request{}, fmt.Errorf("%w: unknown command %q", ErrBadRequest, truncate(token, 32))
	}

	if !cmd.TakesName() {
		if hasArg {
			return Request{}, fmt.Errorf("%w: %s takes no argument", ErrBadRequest, cmd)
		}
		return Request{Command: cmd}, nil
	}

	if !hasArg {
		return Request{}, fmt.Errorf("%w: %s requires a filename", ErrBadRequest, cmd)
	}
	if err := ValidateName(name); err != nil {
		return Request{}, err
	}
	return Request{Command: cmd, Name: name}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package pathparse turns compact vector path text ("M 1,2 l 3,4 z") into
// closed point rings.
//
// Only positional steps matter for region outlines: M/m, L/l, H/h and V/v
// append the new pen position to the open ring, Z/z closes it by repeating
// the ring origin. Curve and arc commands are consumed and ignored, and
// unsupported command letters are skipped along with their operands.
package pathparse

import (
	"fmt"
	"iter"

	"github.com/paulmach/orb"
)

// ParseError reports malformed path text. Offset is a byte offset into the
// input string.
type ParseError struct {
	Offset  int
	Command byte
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Command != 0 {
		return fmt.Sprintf("path: %s at offset %d (command %q)", e.Reason, e.Offset, e.Command)
	}
	return fmt.Sprintf("path: %s at offset %d", e.Reason, e.Offset)
}

type argKind uint8

const (
	argNumber argKind = iota
	argFlag
)

var (
	pairArgs  = []argKind{argNumber, argNumber}
	singleArg = []argKind{argNumber}
	quadArgs  = []argKind{argNumber, argNumber, argNumber, argNumber}
	cubicArgs = []argKind{argNumber, argNumber, argNumber, argNumber, argNumber, argNumber}
	arcArgs   = []argKind{argNumber, argNumber, argNumber, argFlag, argFlag, argNumber, argNumber}
)

// commandArgs lists the argument group of every command that takes one.
// Z/z is handled separately because it takes none.
var commandArgs = map[byte][]argKind{
	'M': pairArgs, 'm': pairArgs,
	'L': pairArgs, 'l': pairArgs,
	'H': singleArg, 'h': singleArg,
	'V': singleArg, 'v': singleArg,
	'C': cubicArgs, 'c': cubicArgs,
	'S': quadArgs, 's': quadArgs,
	'Q': quadArgs, 'q': quadArgs,
	'T': pairArgs, 't': pairArgs,
	'A': arcArgs, 'a': arcArgs,
}

// Rings lazily yields every closed ring described by d. A malformed command
// yields a single *ParseError and ends the sequence. A ring that is still
// open when the input ends is discarded.
func Rings(d string) iter.Seq2[orb.Ring, error] {
	return func(yield func(orb.Ring, error) bool) {
		p := parser{sc: scanner{s: d}}
		for {
			ring, ok, err := p.next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(ring, nil) {
				return
			}
		}
	}
}

// Parse collects Rings. On error it returns the rings closed before the
// failure together with the error.
func Parse(d string) ([]orb.Ring, error) {
	var rings []orb.Ring
	for ring, err := range Rings(d) {
		if err != nil {
			return rings, err
		}
		rings = append(rings, ring)
	}
	return rings, nil
}

type parser struct {
	sc     scanner
	cmd    byte
	pen    orb.Point
	origin orb.Point
	ring   orb.Ring
	failed bool
}

// next advances until a ring is closed, the input ends or an error occurs.
func (p *parser) next() (orb.Ring, bool, error) {
	if p.failed {
		return nil, false, nil
	}
	for {
		if p.sc.done() {
			return nil, false, nil
		}
		start := p.sc.pos
		c := p.sc.s[start]

		if isLetter(c) {
			p.sc.pos++
			if c == 'Z' || c == 'z' {
				p.cmd = c
				if ring, ok := p.close(); ok {
					return ring, true, nil
				}
				continue
			}
			if _, known := commandArgs[c]; !known {
				p.skipUnknown()
				continue
			}
			p.cmd = c
			if err := p.step(); err != nil {
				return p.fail(err)
			}
			continue
		}

		// A bare number repeats the previous command.
		switch p.cmd {
		case 0:
			return p.fail(&ParseError{Offset: start, Reason: "expected command"})
		case 'Z', 'z':
			return p.fail(&ParseError{Offset: start, Command: p.cmd, Reason: "unexpected number after close"})
		}
		if err := p.step(); err != nil {
			return p.fail(err)
		}
	}
}

// skipUnknown drops an unsupported command and its operands: everything up
// to the next known command letter. Nothing is left to repeat afterwards.
func (p *parser) skipUnknown() {
	p.cmd = 0
	for ; p.sc.pos < len(p.sc.s); p.sc.pos++ {
		c := p.sc.s[p.sc.pos]
		if !isLetter(c) {
			continue
		}
		if _, known := commandArgs[c]; known || c == 'Z' || c == 'z' {
			return
		}
	}
}

func (p *parser) fail(err *ParseError) (orb.Ring, bool, error) {
	p.failed = true
	p.ring = nil
	return nil, false, err
}

// step reads one argument group for the current command and applies it.
func (p *parser) step() *ParseError {
	kinds := commandArgs[p.cmd]
	var args [7]float64
	for i, kind := range kinds {
		var err *ParseError
		if kind == argFlag {
			args[i], err = p.sc.flag()
		} else {
			args[i], err = p.sc.number()
		}
		if err != nil {
			err.Command = p.cmd
			if p.sc.atEnd() {
				err.Reason = "missing argument"
			}
			return err
		}
	}

	switch p.cmd {
	case 'M', 'L':
		p.visit(orb.Point{args[0], args[1]})
	case 'm', 'l':
		p.visit(orb.Point{p.pen[0] + args[0], p.pen[1] + args[1]})
	case 'H':
		p.visit(orb.Point{args[0], p.pen[1]})
	case 'h':
		p.visit(orb.Point{p.pen[0] + args[0], p.pen[1]})
	case 'V':
		p.visit(orb.Point{p.pen[0], args[0]})
	case 'v':
		p.visit(orb.Point{p.pen[0], p.pen[1] + args[0]})
	}
	return nil
}

// visit moves the pen and records the point. The first point of a ring
// becomes its origin.
func (p *parser) visit(pt orb.Point) {
	p.pen = pt
	if p.ring == nil {
		p.origin = pt
		p.ring = orb.Ring{pt}
		return
	}
	p.ring = append(p.ring, pt)
}

// close finishes the open ring by repeating its origin. A close with no
// open ring is a no-op.
func (p *parser) close() (orb.Ring, bool) {
	if p.ring == nil {
		return nil, false
	}
	ring := append(p.ring, p.origin)
	p.ring = nil
	p.pen = p.origin
	return ring, true
}

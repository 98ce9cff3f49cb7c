// Package log reads the program logs Solana returns with a transaction.
//
// Failed preflight simulations carry the full invocation log. The parser
// walks it as a call stack and reports the innermost program that failed,
// together with the messages it logged and the units it consumed:
//
//	parser := log.NewParser()
//	if f := parser.Failure(logs); f != nil {
//	    fmt.Println(f.ProgramID, f.Reason, f.Messages)
//	}
package log

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// LogType represents the type of a log message.
type LogType int

const (
	// LogTypeUnknown represents an unrecognized log message.
	LogTypeUnknown LogType = iota
	// LogTypeInvoke represents a "Program X invoke [N]" message.
	LogTypeInvoke
	// LogTypeSuccess represents a "Program X success" message.
	LogTypeSuccess
	// LogTypeFailed represents a "Program X failed: REASON" message.
	LogTypeFailed
	// LogTypeLog represents a "Program log: MESSAGE" message.
	LogTypeLog
	// LogTypeComputeUnits represents a "Program X consumed N of M compute units" message.
	LogTypeComputeUnits
)

// String returns the string representation of LogType.
func (lt LogType) String() string {
	switch lt {
	case LogTypeInvoke:
		return "Invoke"
	case LogTypeSuccess:
		return "Success"
	case LogTypeFailed:
		return "Failed"
	case LogTypeLog:
		return "Log"
	case LogTypeComputeUnits:
		return "ComputeUnits"
	default:
		return "Unknown"
	}
}

// ParsedLog is one classified log line.
type ParsedLog struct {
	Type LogType

	// StackHeight is the call depth of an invoke, starting at 1.
	StackHeight int

	// ProgramID is set for invoke, success, failed and compute-unit lines.
	ProgramID string

	// Message is the text of a program log, or the reason of a failure.
	Message string

	ComputeUnits uint64
	RawLog       string
}

// Parser classifies Solana program log lines.
type Parser struct {
	invoke       *regexp.Regexp
	success      *regexp.Regexp
	failed       *regexp.Regexp
	log          *regexp.Regexp
	computeUnits *regexp.Regexp
}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{
		invoke:       regexp.MustCompile(`^Program (\S+) invoke \[(\d+)\]`),
		success:      regexp.MustCompile(`^Program (\S+) success`),
		failed:       regexp.MustCompile(`^Program (\S+) failed(?:: (.+))?$`),
		log:          regexp.MustCompile(`^Program log: (.+)$`),
		computeUnits: regexp.MustCompile(`^Program (\S+) consumed (\d+) of \d+ compute units`),
	}
}

// Parse classifies a single log line.
func (p *Parser) Parse(line string) ParsedLog {
	result := ParsedLog{Type: LogTypeUnknown, RawLog: line}

	if m := p.log.FindStringSubmatch(line); m != nil {
		result.Type = LogTypeLog
		result.Message = m[1]
		return result
	}
	if m := p.invoke.FindStringSubmatch(line); m != nil {
		result.Type = LogTypeInvoke
		result.ProgramID = m[1]
		result.StackHeight, _ = strconv.Atoi(m[2])
		return result
	}
	if m := p.success.FindStringSubmatch(line); m != nil {
		result.Type = LogTypeSuccess
		result.ProgramID = m[1]
		return result
	}
	if m := p.failed.FindStringSubmatch(line); m != nil {
		result.Type = LogTypeFailed
		result.ProgramID = m[1]
		result.Message = m[2]
		return result
	}
	if m := p.computeUnits.FindStringSubmatch(line); m != nil {
		result.Type = LogTypeComputeUnits
		result.ProgramID = m[1]
		result.ComputeUnits, _ = strconv.ParseUint(m[2], 10, 64)
		return result
	}
	return result
}

// ParseAll classifies every line.
func (p *Parser) ParseAll(lines []string) []ParsedLog {
	out := make([]ParsedLog, 0, len(lines))
	for _, line := range lines {
		out = append(out, p.Parse(line))
	}
	return out
}

// Failure is the innermost program failure of a transaction log.
type Failure struct {
	ProgramID    string
	Reason       string
	Depth        int
	Messages     []string
	ComputeUnits uint64
}

func (f *Failure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "program %s failed", f.ProgramID)
	if f.Reason != "" {
		fmt.Fprintf(&b, ": %s", f.Reason)
	}
	if len(f.Messages) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(f.Messages, "; "))
	}
	return b.String()
}

type frame struct {
	program  string
	depth    int
	messages []string
	units    uint64
}

// Failure returns the first program to fail in lines, which is the innermost
// frame of the failing call chain, or nil when no program failed.
func (p *Parser) Failure(lines []string) *Failure {
	var stack []*frame
	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for _, line := range lines {
		parsed := p.Parse(line)
		switch parsed.Type {
		case LogTypeInvoke:
			stack = append(stack, &frame{program: parsed.ProgramID, depth: parsed.StackHeight})
		case LogTypeLog:
			if f := top(); f != nil {
				f.messages = append(f.messages, parsed.Message)
			}
		case LogTypeComputeUnits:
			if f := top(); f != nil && f.program == parsed.ProgramID {
				f.units = parsed.ComputeUnits
			}
		case LogTypeSuccess:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case LogTypeFailed:
			failure := &Failure{ProgramID: parsed.ProgramID, Reason: parsed.Message}
			if f := top(); f != nil && f.program == parsed.ProgramID {
				failure.Depth = f.depth
				failure.Messages = f.messages
				failure.ComputeUnits = f.units
			}
			return failure
		}
	}
	return nil
}

// ConsumedUnits sums the units consumed by top-level instructions.
func (p *Parser) ConsumedUnits(lines []string) uint64 {
	var total uint64
	depth := 0
	for _, line := range lines {
		parsed := p.Parse(line)
		switch parsed.Type {
		case LogTypeInvoke:
			depth = parsed.StackHeight
		case LogTypeSuccess, LogTypeFailed:
			depth--
		case LogTypeComputeUnits:
			if depth == 1 {
				total += parsed.ComputeUnits
			}
		}
	}
	return total
}

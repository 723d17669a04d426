// Package protocol implements the stowd wire format.
//
// Requests are a single header line, optionally followed (for PUT) by a
// fixed 8-byte size field and the raw payload:
//
//	LIST\n
//	GET <name>\n
//	PUT <name>\n<size:8><payload:size>
//	DELETE <name>\n
//
// Responses start with a status line. Successful GET and LIST responses
// carry an 8-byte size and a payload, PUT and DELETE carry nothing else, and
// failures carry one human-readable message line:
//
//	OK\n<size:8><payload:size>
//	OK\n
//	ERROR\n<message>\n
//
// The size field is a raw unsigned 64-bit integer in a configurable byte
// order (see ByteOrder). Client and server must agree on it.
package protocol

import "fmt"

// Command identifies a request verb.
type Command uint8

const (
	CommandUnknown Command = iota
	CommandList
	CommandGet
	CommandPut
	CommandDelete
)

// SizeFieldLen is the width of every size field on the wire.
const SizeFieldLen = 8

// MaxHeaderSize bounds the request line, command and filename included.
const MaxHeaderSize = 4096

// MaxNameLen is the longest accepted filename.
const MaxNameLen = 255

// Status lines.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Wire error messages.
const (
	MsgUnknownFile  = "Unknown file"
	MsgBadRequest   = "Bad request"
	MsgBadFileSize  = "Bad file size"
	MsgFileTooLarge = "File too large"
)

var commandNames = map[Command]string{
	CommandList:   "LIST",
	CommandGet:    "GET",
	CommandPut:    "PUT",
	CommandDelete: "DELETE",
}

// ParseCommand maps a request token to its Command. Matching is exact and
// case-sensitive.
func ParseCommand(token string) Command {
	for c, name := range commandNames {
		if name == token {
			return c
		}
	}
	return CommandUnknown
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(c))
}

// TakesName reports whether the command requires a filename argument.
func (c Command) TakesName() bool {
	return c == CommandGet || c == CommandPut || c == CommandDelete
}

// Request is a fully decoded request header.
type Request struct {
	Command Command
	Name    string
	Size    uint64 // PUT only
}

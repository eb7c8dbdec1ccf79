// Package state tracks pending conversation waits: a handler asks for the next
// qualifying reply of a chat member and continues once it arrives, times out or
// is superseded by a new command.
package state

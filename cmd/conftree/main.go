// Package main is the conftree command line tool: validate schemas,
// inspect and edit versioned configuration documents, and watch files
// for changes.
package main

func main() {
	Execute()
}

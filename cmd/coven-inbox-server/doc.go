// Command coven-inbox-server runs the development conversation store that
// coven-inbox polls.
//
// A first run looks like:
//
//	coven-inbox-server init --viewer alice
//	coven-inbox-server seed
//	coven-inbox-server serve
package main

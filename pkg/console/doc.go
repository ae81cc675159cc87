// Package console runs an interactive loop that admits one request through a
// Guard each time the user presses Enter.
//
//	Press Enter to make a request. Press 'Q' to quit.
//	Waiting for user input...
//
//	Request allowed.
//	Waiting for user input...
//
//	Request blocked. Time remaining: 42.5 seconds.
//
// Input is read line by line, so any io.Reader works, which keeps the loop
// scriptable:
//
//	printf '\n\n\n\nq\n' | ratelimiter console
package console

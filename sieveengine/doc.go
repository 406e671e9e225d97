// Package sieveengine runs Sieve scripts against messages at delivery time.
//
// Scripts are compiled to programs by package compiler and executed by the
// sieve runtime. This package provides:
//   - Executors that evaluate one program against a message
//   - An Engine that applies configured limits, caches executors and keeps
//     compiled programs in a persistent store
//   - Parsing of raw messages into an evaluation Context
//
// # Execution Model
//
// A delivery evaluates the recipient's script once:
//  1. Look up a cached executor for the script text
//  2. Otherwise load the stored program, or compile and store it
//  3. Run the program with the instruction limit applied
//  4. Reduce the collected actions to a single Result
//
// Without explicit actions the message is kept (implicit keep). fileinto
// and redirect cancel the implicit keep; an explicit keep restores it and
// sets Result.Copy.
//
// # Example
//
//	require ["fileinto", "envelope"];
//
//	if envelope :domain :is "from" "example.com" {
//	    fileinto "Work";
//	    stop;
//	}
//
//	if header :contains "X-Spam-Flag" "YES" {
//	    discard;
//	}
//
// # Failure Handling
//
// Evaluation errors leave the message with ActionKeep. Programs that fail
// to decode are counted in svbin_decode_errors_total; stored programs that
// cannot be loaded are recompiled from source.
package sieveengine

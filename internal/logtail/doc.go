// Package logtail reads the end of crawldeck's log file for the in-app log
// view.
//
// The client logs with the standard library logger, which has no levels, so
// Classify infers one from the message wording. Tail keeps a fixed-size ring
// buffer while scanning, so memory stays bounded for any file size.
package logtail

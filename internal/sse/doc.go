// Package sse decodes the text/event-stream bodies returned by chat
// completion endpoints when streaming is enabled.
//
// Only the data field is surfaced. Events are separated by blank lines,
// multiple data lines of one event are joined with a newline, and the
// OpenAI "data: [DONE]" terminator is swallowed.
//
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

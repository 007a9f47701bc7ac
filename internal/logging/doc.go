// Package logging builds the slog loggers used by every vidresolve component.
//
// Two formats exist: a console format that lifts the component, record ID
// and operation into a readable line header, and JSON for log shippers.
// WithContext copies the identifiers carried by a request context onto a
// logger, and WarnWithContext/ErrorWithContext keep warning and error lines
// consistent with an event type, an operator hint and an impact.
package logging

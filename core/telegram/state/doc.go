// Package state routes free-text updates to the handler of the conversation
// step a user is in. The step itself is owned by the caller through Tracker,
// so the package stays domain agnostic.
package state

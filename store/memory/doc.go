// Package memory provides an in-process accounts.UserStore for development
// runs and tests. Contents are lost when the process exits.
package memory

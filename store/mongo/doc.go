// Package mongo stores accounts in a MongoDB collection.
//
// Documents use the user id as _id. Email and username carry unique indexes
// created by EnsureIndexes; a collision on insert is reported as
// accounts.ErrDuplicateEmail or accounts.ErrDuplicateUsername.
package mongo

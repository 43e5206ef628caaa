// Package dbctx carries the request-scoped context.Context alongside an
// optional open transaction so repos can participate in a caller's
// transaction without threading *gorm.DB through every signature.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context pairs a context.Context with an optional transaction handle. A nil
// Tx tells a repo to use its own base *gorm.DB.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Background returns a Context with no transaction, for call sites outside
// a request lifecycle (schedulers, background workers).
func Background() Context {
	return Context{Ctx: context.Background()}
}

// WithTx returns a copy of c bound to tx, used by repos implementing
// read-modify-write sequences that must stay within one transaction.
func (c Context) WithTx(tx *gorm.DB) Context {
	c.Tx = tx
	return c
}

// Package logx is the structured logger used across focusbot.
//
// It wraps zerolog so call sites only deal with Logger and Field values.
// Console output stays short and readable, the optional file sink is JSON,
// and an optional alert sink forwards warnings to an operator chat under a
// rate limit.
package logx

// Package logx provides the structured logger used across the bot.
//
// It wraps zerolog behind a small facade so call sites don't depend on the
// sink configuration: the root logger can be swapped at runtime via
// Service.Apply() (console on/off, file sink, level) without re-plumbing
// loggers through every component.
package logx

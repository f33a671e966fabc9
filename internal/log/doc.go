// Package log defines the structured logging contract shared by every corebank
// component.
//
// Components depend on Logger only; the zap-backed implementation lives in
// internal/zap and NewNop stands in wherever no logger was injected.
package log

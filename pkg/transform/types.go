// Package transform evaluates per-subscription JavaScript expressions that
// turn a raw MQTT payload into the value shown on the dashboard.
package transform

import (
	"errors"

	"github.com/dop251/goja"
)

var (
	ErrEmptyResult = errors.New("transform produced no value")
	ErrTimeout     = errors.New("transform execution timeout")
)

// Program is a compiled transform. It can be shared between executors.
type Program struct {
	source  string
	program *goja.Program
}

func (p *Program) Source() string {
	return p.source
}

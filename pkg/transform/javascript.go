package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// DefaultMaxExecutionTime bounds a single transform run.
const DefaultMaxExecutionTime = 100 * time.Millisecond

// Compile parses source once. An empty source compiles to a nil Program,
// which Executor.Apply treats as the identity transform.
func Compile(source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, nil
	}

	compiled, err := goja.Compile("transform", source, false)
	if err != nil {
		return nil, fmt.Errorf("JavaScript compile error: %w", err)
	}

	return &Program{source: source, program: compiled}, nil
}

// Executor runs programs on one reused goja runtime. It is not safe for
// concurrent use; the router calls it from the session loop only.
type Executor struct {
	vm               *goja.Runtime
	maxExecutionTime time.Duration
	logger           zerolog.Logger
}

func NewExecutor(maxExecutionTime time.Duration, logger zerolog.Logger) *Executor {
	if maxExecutionTime <= 0 {
		maxExecutionTime = DefaultMaxExecutionTime
	}

	e := &Executor{
		vm:               goja.New(),
		maxExecutionTime: maxExecutionTime,
		logger:           logger,
	}
	e.setupEnvironment()
	return e
}

func (e *Executor) setupEnvironment() {
	e.vm.Set("log", func(args ...interface{}) {
		message := make([]string, len(args))
		for i, arg := range args {
			message[i] = fmt.Sprintf("%v", arg)
		}
		e.logger.Debug().Msg(strings.Join(message, " "))
	})

	e.vm.Set("parseJSON", func(jsonStr string) interface{} {
		var result interface{}
		if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
			return nil
		}
		return result
	})
}

// Apply runs program against payload and returns the value as text. A nil
// program returns payload unchanged.
func (e *Executor) Apply(program *Program, topic, payload string) (string, error) {
	if program == nil {
		return payload, nil
	}

	e.vm.Set("payload", payload)
	e.vm.Set("topic", topic)

	var parsed interface{}
	if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
		e.vm.Set("json", parsed)
	} else {
		e.vm.Set("json", goja.Undefined())
	}

	timer := time.AfterFunc(e.maxExecutionTime, func() {
		e.vm.Interrupt(ErrTimeout)
	})
	value, err := e.vm.RunProgram(program.program)
	timer.Stop()
	e.vm.ClearInterrupt()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return "", fmt.Errorf("%w after %v", ErrTimeout, e.maxExecutionTime)
		}
		return "", fmt.Errorf("JavaScript execution error: %w", err)
	}

	return formatValue(value)
}

func formatValue(value goja.Value) (string, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return "", ErrEmptyResult
	}

	switch v := value.Export().(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsNaN(v) {
			return "", ErrEmptyResult
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return value.String(), nil
		}
		return string(data), nil
	}
}

package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// constructors maps every supported executor type to its constructor.
var constructors = map[Type]func() Executor{
	TypeConstantVUs: func() Executor { return NewConstantVUs() },
	TypeRampingVUs:  func() Executor { return NewRampingVUs() },
}

// NewExecutor returns an uninitialized executor of the given type.
// Call Init before Run.
func NewExecutor(t Type) (Executor, error) {
	newFn, ok := constructors[t]
	if !ok {
		return nil, fmt.Errorf("unknown executor type: %s (supported: %s)", t, supportedList())
	}
	return newFn(), nil
}

// CreateAndInitExecutor creates and initializes an executor for cfg.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := exec.Init(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize %s executor: %w", cfg.Type, err)
	}
	return exec, nil
}

// IsSupported reports whether t names a supported executor.
func IsSupported(t Type) bool {
	_, ok := constructors[t]
	return ok
}

// SupportedTypes lists the supported executor types in name order.
func SupportedTypes() []Type {
	types := make([]Type, 0, len(constructors))
	for t := range constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func supportedList() string {
	names := make([]string, 0, len(constructors))
	for _, t := range SupportedTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

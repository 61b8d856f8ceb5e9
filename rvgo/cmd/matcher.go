package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rv32sim/rv32sim/rvgo/fast"
)

const patternHelp = "'never' (default), 'always', '=123' at exactly step 123, '%123' for every 123 steps"

type StepMatcher func(st *fast.VMState) bool

type StepMatcherFlag struct {
	repr    string
	matcher StepMatcher
}

func MustStepMatcherFlag(pattern string) *StepMatcherFlag {
	out := new(StepMatcherFlag)
	if err := out.Set(pattern); err != nil {
		panic(err)
	}
	return out
}

func (m *StepMatcherFlag) Set(value string) error {
	m.repr = value
	if value == "" || value == "never" {
		m.matcher = func(st *fast.VMState) bool {
			return false
		}
	} else if value == "always" {
		m.matcher = func(st *fast.VMState) bool {
			return true
		}
	} else if strings.HasPrefix(value, "=") {
		when, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse step number: %w", err)
		}
		m.matcher = func(st *fast.VMState) bool {
			return st.Step == when
		}
	} else if strings.HasPrefix(value, "%") {
		when, err := strconv.ParseUint(value[1:], 0, 64)
		if err != nil {
			return fmt.Errorf("failed to parse step interval number: %w", err)
		}
		if when == 0 {
			return fmt.Errorf("step interval must not be 0")
		}
		m.matcher = func(st *fast.VMState) bool {
			return st.Step%when == 0
		}
	} else {
		return fmt.Errorf("unrecognized step matcher: %q", value)
	}
	return nil
}

func (m *StepMatcherFlag) String() string {
	return m.repr
}

func (m *StepMatcherFlag) Matcher() StepMatcher {
	if m.matcher == nil { // Set was never called, match nothing
		return func(st *fast.VMState) bool {
			return false
		}
	}
	return m.matcher
}

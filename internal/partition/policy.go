// Package partition divides an index space [0, n) among a fixed number of
// workers and runs a body over the resulting blocks in a fork-join.
//
// Four policies are supported:
//
//	StaticEqual       contiguous ranges of ceil(n/W), one per worker
//	StaticChunked(c)  blocks of c dealt round-robin, fixed up front
//	Dynamic(c)        blocks of c claimed from a shared cursor
//	Guided(c)         blocks of ceil(remaining/W) claimed from a shared
//	                  cursor, never smaller than c
//
// A chunk size of 0 selects the policy's default granularity:
// DefaultDynamicChunk for Dynamic and DefaultGuidedChunk for Guided.
// StaticChunked(0) degrades to StaticEqual.
package partition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Default granularities used when a policy is given chunk size 0.
const (
	DefaultDynamicChunk = 1
	DefaultGuidedChunk  = 1
)

// Kind enumerates the partitioning policies.
type Kind int

const (
	KindStaticEqual Kind = iota
	KindStaticChunked
	KindDynamic
	KindGuided
)

func (k Kind) String() string {
	switch k {
	case KindStaticEqual:
		return "static"
	case KindStaticChunked:
		return "static-chunked"
	case KindDynamic:
		return "dynamic"
	case KindGuided:
		return "guided"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Policy is a partitioning policy together with its chunk size.
type Policy struct {
	kind  Kind
	chunk int
}

// Static returns the StaticEqual policy.
func Static() Policy { return Policy{kind: KindStaticEqual} }

// StaticChunked returns a round-robin block policy with block size c.
func StaticChunked(c int) Policy {
	if c <= 0 {
		return Static()
	}
	return Policy{kind: KindStaticChunked, chunk: c}
}

// Dynamic returns a shared-cursor policy handing out blocks of c.
func Dynamic(c int) Policy { return Policy{kind: KindDynamic, chunk: max(c, 0)} }

// Guided returns a shared-cursor policy with shrinking blocks floored at c.
func Guided(c int) Policy { return Policy{kind: KindGuided, chunk: max(c, 0)} }

// Kind returns the policy kind.
func (p Policy) Kind() Kind { return p.kind }

// Chunk returns the requested chunk size; 0 means the policy default.
func (p Policy) Chunk() int { return p.chunk }

// Granularity returns the effective block size (or floor, for Guided).
// StaticEqual has no fixed granularity and reports 0.
func (p Policy) Granularity() int {
	switch p.kind {
	case KindStaticChunked:
		return p.chunk
	case KindDynamic:
		if p.chunk == 0 {
			return DefaultDynamicChunk
		}
		return p.chunk
	case KindGuided:
		if p.chunk == 0 {
			return DefaultGuidedChunk
		}
		return p.chunk
	default:
		return 0
	}
}

// Schedule returns the selector this policy is encoded as in reports.
func (p Policy) Schedule() Schedule {
	switch p.kind {
	case KindDynamic:
		return ScheduleDynamic
	case KindGuided:
		return ScheduleGuided
	default:
		return ScheduleStatic
	}
}

func (p Policy) String() string {
	if p.kind == KindStaticEqual {
		return p.kind.String()
	}
	return fmt.Sprintf("%s(%d)", p.kind, p.Granularity())
}

// Schedule is the report/CLI encoding of a policy family:
// 0 static, 1 dynamic, 2 guided.
type Schedule int

const (
	ScheduleStatic  Schedule = 0
	ScheduleDynamic Schedule = 1
	ScheduleGuided  Schedule = 2
)

// ErrUnknownSchedule is returned for selectors outside {0, 1, 2}.
var ErrUnknownSchedule = errors.New("unknown schedule")

// ErrNegativeChunk is returned for chunk sizes below zero.
var ErrNegativeChunk = errors.New("chunk size must be non-negative")

func (s Schedule) String() string {
	switch s {
	case ScheduleStatic:
		return "static"
	case ScheduleDynamic:
		return "dynamic"
	case ScheduleGuided:
		return "guided"
	default:
		return fmt.Sprintf("Schedule(%d)", int(s))
	}
}

// Valid reports whether s is one of the canonical selectors.
func (s Schedule) Valid() bool {
	return s == ScheduleStatic || s == ScheduleDynamic || s == ScheduleGuided
}

// ParseSchedule accepts either the numeric selector or its name.
func ParseSchedule(v string) (Schedule, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if n, err := strconv.Atoi(v); err == nil {
		s := Schedule(n)
		if !s.Valid() {
			return 0, fmt.Errorf("%w: %d (valid: 0 static, 1 dynamic, 2 guided)", ErrUnknownSchedule, n)
		}
		return s, nil
	}
	switch v {
	case "static":
		return ScheduleStatic, nil
	case "dynamic":
		return ScheduleDynamic, nil
	case "guided":
		return ScheduleGuided, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid: static, dynamic, guided)", ErrUnknownSchedule, v)
	}
}

// PolicyFor builds the policy encoded by a (schedule, chunk) pair. Chunk 0
// selects the policy default: StaticEqual for static, default granularity
// for dynamic and guided.
func PolicyFor(s Schedule, chunk int) (Policy, error) {
	if chunk < 0 {
		return Policy{}, fmt.Errorf("%w: %d", ErrNegativeChunk, chunk)
	}
	switch s {
	case ScheduleStatic:
		return StaticChunked(chunk), nil
	case ScheduleDynamic:
		return Dynamic(chunk), nil
	case ScheduleGuided:
		return Guided(chunk), nil
	default:
		return Policy{}, fmt.Errorf("%w: %d", ErrUnknownSchedule, int(s))
	}
}

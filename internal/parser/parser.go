package parser

import (
	"errors"
	"strings"
)

// MaxStages is the longest pipeline the shell will run.
const MaxStages = 2

var (
	ErrEmptyCommand  = errors.New("empty command")
	ErrTooManyStages = errors.New("pipelines of more than two commands are not supported")
)

// Stage is one command of a pipeline. Args includes the program name.
type Stage struct {
	Program string
	Args    []string
}

// Pipeline is the parsed form of one input line.
type Pipeline []Stage

// IsSingle reports whether the pipeline has exactly one stage.
func (p Pipeline) IsSingle() bool {
	return len(p) == 1
}

// Parse splits a line on '|' and each segment on whitespace.
//
//	"echo abc def"      -> [{echo [echo abc def]}]
//	"echo abc | less"   -> [{echo [echo abc]} {less [less]}]
func Parse(input string) (Pipeline, error) {
	parts := strings.Split(input, "|")
	if len(parts) > MaxStages {
		return nil, ErrTooManyStages
	}

	commands := make(Pipeline, 0, len(parts))
	for _, part := range parts {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			return nil, ErrEmptyCommand
		}
		commands = append(commands, Stage{Program: tokens[0], Args: tokens})
	}

	return commands, nil
}

package session

import (
	"github.com/charmbracelet/huh"
)

// Prompter collects answers from the user.
type Prompter interface {
	Select(title string, options []string) (int, error)
	Input(title string) (string, error)
	Confirm(title string) (bool, error)
}

type huhPrompter struct{}

// NewPrompter returns a terminal prompter backed by huh forms.
func NewPrompter() Prompter {
	return huhPrompter{}
}

func (huhPrompter) Select(title string, options []string) (int, error) {
	opts := make([]huh.Option[int], 0, len(options))
	for i, label := range options {
		opts = append(opts, huh.NewOption(label, i))
	}

	var choice int
	err := huh.NewSelect[int]().
		Title(title).
		Options(opts...).
		Value(&choice).
		Run()

	return choice, err
}

func (huhPrompter) Input(title string) (string, error) {
	var value string
	err := huh.NewInput().
		Title(title).
		Value(&value).
		Run()

	return value, err
}

func (huhPrompter) Confirm(title string) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()

	return confirm, err
}

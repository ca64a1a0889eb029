package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
)

// windowForm collects a query window as two RFC3339 strings, validating
// each as it's typed the way AutoForm's generated fields do for the
// firewall configuration forms.
type windowForm struct {
	Start string
	End   string
	form  *huh.Form
}

func newWindowForm() *windowForm {
	now := time.Now().UTC()
	wf := &windowForm{
		Start: now.Add(-24 * time.Hour).Format(time.RFC3339),
		End:   now.Format(time.RFC3339),
	}

	validateRFC3339 := func(s string) error {
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("must be RFC3339, e.g. %s", time.RFC3339)
		}
		return nil
	}

	wf.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Start").Value(&wf.Start).Validate(validateRFC3339),
			huh.NewInput().Title("End").Value(&wf.End).Validate(validateRFC3339),
		),
	).WithTheme(huh.ThemeBase16())

	return wf
}

// Window parses the form's current values into unix seconds.
func (wf *windowForm) Window() (begin, end int64, err error) {
	bt, err := time.Parse(time.RFC3339, wf.Start)
	if err != nil {
		return 0, 0, err
	}
	et, err := time.Parse(time.RFC3339, wf.End)
	if err != nil {
		return 0, 0, err
	}
	return bt.Unix(), et.Unix(), nil
}

package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// defaultLead is how far ahead a session is booked when neither the user nor
// the suggestion names a date.
const defaultLead = 24 * time.Hour

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// resolveDate picks the session date: the user's request, else the suggested
// date, else defaultLead from now. Only an unreadable request is an error; an
// unreadable suggestion falls back to the default.
func (c *Coordinator) resolveDate(requested, suggested string) (time.Time, error) {
	base := c.now()

	if requested = strings.TrimSpace(requested); requested != "" {
		t, ok := c.parseDate(requested, base)
		if !ok {
			return time.Time{}, fmt.Errorf("unrecognized date %q", requested)
		}
		return t, nil
	}

	if suggested = strings.TrimSpace(suggested); suggested != "" {
		if t, ok := c.parseDate(suggested, base); ok {
			return t, nil
		}
	}
	return base.Add(defaultLead), nil
}

func (c *Coordinator) parseDate(s string, base time.Time) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, base.Location()); err == nil {
			return t, true
		}
	}

	r, err := c.dates.Parse(s, base)
	if err == nil && r != nil {
		return r.Time, true
	}
	return time.Time{}, false
}

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/mmynk/rngenius/internal/cache"
	"github.com/mmynk/rngenius/internal/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printGenerators(w io.Writer, st cache.State) {
	if st.GeneratorError != "" {
		fmt.Fprintln(w, st.GeneratorError)
	}
	if len(st.Generators) == 0 {
		fmt.Fprintln(w, "No generators yet. Create one with: rngenius add-generator -title <title>")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tOWNER\tOPTIONS\tPARTICIPANTS")
	for _, g := range st.Generators {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", g.ID, g.Title, g.User.FullName(), len(g.Options), len(g.Participants))
	}
	tw.Flush()
}

func printGenerator(w io.Writer, g models.Generator, userID int64) {
	fmt.Fprintf(w, "%s (#%d, icon %d), owned by %s\n", g.Title, g.ID, g.IconNumber, g.User.FullName())

	me, _ := g.ParticipantFor(userID)
	var names []string
	for _, p := range g.Participants {
		names = append(names, fmt.Sprintf("%s [%d]", p.User.FullName(), p.User.ID))
	}
	fmt.Fprintf(w, "Participants: %s\n", strings.Join(names, ", "))
	if me.Notifications {
		fmt.Fprintln(w, "Notifications: on")
	} else {
		fmt.Fprintln(w, "Notifications: off")
	}
	if !g.HasEligibleOptions() {
		fmt.Fprintln(w, "Every option is excluded by someone, nothing can be generated.")
	}

	for _, c := range g.Categories() {
		fmt.Fprintf(w, "\n%s%s\n", c.Name, categoryFlags(me, c.Name))
		tw := newTable(w)
		for _, o := range c.Options {
			sel, _ := me.SelectionFor(o.ID)
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", o.ID, o.Name, selectionFlags(sel), marks(g.Marks(o.ID, userID)))
		}
		tw.Flush()
	}
}

func categoryFlags(p models.Participant, category string) string {
	var flags []string
	if p.AllExcluded(category) {
		flags = append(flags, "excluded")
	}
	if p.AllFavorised(category) {
		flags = append(flags, "favorite")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}

func selectionFlags(s models.Selection) string {
	switch {
	case s.Excluded && s.Favorised:
		return "excluded, favorite"
	case s.Excluded:
		return "excluded"
	case s.Favorised:
		return "favorite"
	}
	return "-"
}

func marks(ms []models.Mark) string {
	var parts []string
	for _, m := range ms {
		if m.Excluded {
			parts = append(parts, m.Name+" excluded")
		}
		if m.Favorised {
			parts = append(parts, m.Name+" likes")
		}
	}
	return strings.Join(parts, "; ")
}

func printResults(w io.Writer, st cache.State) {
	if st.ResultError != "" {
		fmt.Fprintln(w, st.ResultError)
	}
	if len(st.Results) == 0 {
		fmt.Fprintln(w, "No results yet")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "\tWHEN\tGENERATOR\tOPTION\tBY")
	for _, r := range st.Results {
		unread := ""
		if r.DateTime.Truncate(time.Second).After(st.LatestChecked) {
			unread = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", unread, r.DateTime.Format(time.DateTime),
			generatorTitle(st, r.GeneratorID), r.Option.Name, r.User.FullName())
	}
	tw.Flush()
}

func generatorTitle(st cache.State, id int64) string {
	if g, ok := st.Generator(id); ok {
		return g.Title
	}
	return fmt.Sprintf("#%d", id)
}

// watcher prints what changed between cache states. Change callbacks arrive
// from the poll goroutine.
type watcher struct {
	mu     sync.Mutex
	w      io.Writer
	last   cache.State
	primed bool
}

func newWatcher(w io.Writer) *watcher {
	return &watcher{w: w}
}

func (w *watcher) update(st cache.State) {
	if st.Loading {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	defer func() { w.last, w.primed = st, true }()

	if !w.primed {
		fmt.Fprintf(w.w, "%d generators, %d results%s\n", len(st.Generators), len(st.Results), unread(st))
		return
	}
	if len(st.Generators) != len(w.last.Generators) {
		fmt.Fprintf(w.w, "Generators: %d\n", len(st.Generators))
	}
	if st.LatestRetrieved.After(w.last.LatestRetrieved) && len(st.Results) > 0 {
		r := st.Results[0]
		fmt.Fprintf(w.w, "New result: %s in %s%s\n", r.Option.Name, generatorTitle(st, r.GeneratorID), unread(st))
	}
	if st.GeneratorError != "" && st.GeneratorError != w.last.GeneratorError {
		fmt.Fprintln(w.w, st.GeneratorError)
	}
	if st.ResultError != "" && st.ResultError != w.last.ResultError {
		fmt.Fprintln(w.w, st.ResultError)
	}
}

func unread(st cache.State) string {
	if st.HasUnread() {
		return " (unread)"
	}
	return ""
}

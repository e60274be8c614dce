// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar implements a concurrent progress bar. The bar is redrawn
// from its own goroutine so that drawing runs concurrently with the
// work whose progress is being displayed.
type ProgressBar struct {
	// width determines the number of characters wide that the progress
	// bar should be
	width int

	// maxProgress determines the number of times Increment() should
	// be called before the progress bar reaches 100%.
	maxProgress int

	mu              sync.Mutex
	currentProgress int
	description     string
	startTime       time.Time

	out         io.Writer
	updateEvery time.Duration
	closeEvent  chan struct{}
	done        chan struct{}
	once        sync.Once
}

// NewProgressBar returns a new progress bar that is width characters
// wide and reaches 100% capacity after max Increment() calls. The bar is
// redrawn to out every updateEvery.
func NewProgressBar(out io.Writer, width, max int,
	updateEvery time.Duration) *ProgressBar {
	if max <= 0 {
		max = 1
	}
	return &ProgressBar{
		width:       width,
		maxProgress: max,
		out:         out,
		updateEvery: updateEvery,
		closeEvent:  make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Increment increments the interal progress counter. Each time an
// iteration is performed, Increment should be called.
func (p *ProgressBar) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentProgress < p.maxProgress {
		p.currentProgress++
	}
}

// Describe sets the text displayed after the progress bar
func (p *ProgressBar) Describe(description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.description = description
}

// Display starts drawing the progress bar on the screen. It should only
// be called once.
func (p *ProgressBar) Display() {
	p.mu.Lock()
	p.startTime = time.Now()
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		tick := time.NewTicker(p.updateEvery)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				p.draw()

			// Close if a close event is sent
			case <-p.closeEvent:
				p.draw()
				return
			}
		}
	}()
}

// Close stops drawing the progress bar after drawing it one final time.
// It is safe to call Close more than once.
func (p *ProgressBar) Close() {
	p.once.Do(func() {
		close(p.closeEvent)
		<-p.done
		fmt.Fprintln(p.out) // Jump to next line after printed pbar
	})
}

func (p *ProgressBar) draw() {
	p.mu.Lock()
	fraction := float64(p.currentProgress) / float64(p.maxProgress)
	description := p.description
	elapsed := time.Since(p.startTime).Truncate(time.Second)
	p.mu.Unlock()

	var bar strings.Builder
	bar.WriteString("|")
	filled := int(fraction * float64(p.width))
	bar.WriteString(strings.Repeat("█", filled))
	bar.WriteString(strings.Repeat(" ", p.width-filled))
	fmt.Fprintf(&bar, "| [%.2f%% | elapsed: %v]", fraction*100, elapsed)
	if description != "" {
		fmt.Fprintf(&bar, " %v", description)
	}

	fmt.Fprintf(p.out, "\n\033[1A\033[K%v", bar.String())
}

package main

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// progressBar renders batch progress on w.
type progressBar struct {
	w   io.Writer
	bar *pb.ProgressBar
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

func (p *progressBar) Start(total int) {
	p.bar = pb.New(total).SetWriter(p.w).Start()
}

func (p *progressBar) Increment() {
	if p.bar != nil {
		p.bar.Increment()
	}
}

func (p *progressBar) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}

//go:build amd64 && cgo

package window

import (
	"gioui.org/app"
	"gioui.org/io/system"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"github.com/sirupsen/logrus"
)

// Open creates the simulation window. Closing the window does not stop the server.
func Open(width, height int) *Surface {
	s := newSurface(width, height)

	w := app.NewWindow(
		app.Title("bildkadro"),
		app.Size(unit.Px(float32(width)), unit.Px(float32(height))),
		app.MinSize(unit.Px(float32(width)/4), unit.Px(float32(height)/4)),
	)
	s.invalidate = w.Invalidate

	go func() {
		if err := gioloop(w, s); err != nil {
			logrus.Warnf("Simulation window closed: %v", err)
		}
	}()
	go app.Main()
	return s
}

func gioloop(w *app.Window, s *Surface) error {
	var ops op.Ops
	for {
		e := <-w.Events()
		switch e := e.(type) {
		case system.DestroyEvent:
			return e.Err
		case system.FrameEvent:
			gtx := layout.NewContext(&ops, e)
			img := widget.Image{Src: paint.NewImageOp(s.Frame()), Fit: widget.Contain}
			img.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

//go:build !amd64 || !cgo

package window

import "github.com/sirupsen/logrus"

// Open returns a headless surface: there is no window toolkit on this architecture.
func Open(width, height int) *Surface {
	logrus.Infof("No simulation window on this architecture, frames are kept in memory")
	return newSurface(width, height)
}

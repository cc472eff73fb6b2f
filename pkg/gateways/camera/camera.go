// Package camera drives the image peripheral. Captures land in the document store at a
// fixed path from which the picture is later broadcast.
package camera

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"

	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/storage"
	"github.com/sirupsen/logrus"
)

type Resolution string

const (
	Resolution160x120 Resolution = "160x120"
	Resolution320x240 Resolution = "320x240"
	Resolution640x480 Resolution = "640x480"
)

func (r Resolution) size() (int, int) {
	switch r {
	case Resolution160x120:
		return 160, 120
	case Resolution640x480:
		return 640, 480
	}
	return 320, 240
}

type Camera interface {
	Initialize() bool
	Capture(resolution Resolution) bool
}

type simulatedCamera struct {
	documents storage.DocumentStore
	path      string
	present   bool
	log       *logrus.Entry
	shots     atomic.Uint32
}

// NewSimulatedCamera renders a synthetic frame per capture. A camera created absent
// fails initialization like an unplugged peripheral.
func NewSimulatedCamera(documents storage.DocumentStore, path string, present bool, log *logrus.Entry) Camera {
	return &simulatedCamera{documents: documents, path: path, present: present, log: log}
}

func (c *simulatedCamera) Initialize() bool {
	if !c.present {
		c.log.Warn("camera not detected")
	}
	return c.present
}

func (c *simulatedCamera) Capture(resolution Resolution) bool {
	if !c.present {
		return false
	}
	width, height := resolution.size()
	shot := uint8(c.shots.Add(1))
	frame := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			frame.SetGray(x, y, color.Gray{Y: uint8(x+y) + shot})
		}
	}
	var encoded bytes.Buffer
	if err := jpeg.Encode(&encoded, frame, &jpeg.Options{Quality: 60}); err != nil {
		c.log.Errorf("encode frame: %v", err)
		return false
	}
	if !c.documents.WriteDocument(c.path, encoded.Bytes()) {
		return false
	}
	c.log.Infof("captured %s frame, %d bytes", resolution, encoded.Len())
	return true
}

package camera

import (
	"github.com/pion/mediadevices"

	_ "github.com/pion/mediadevices/pkg/driver/camera" // This is required to register camera adapter - DON'T REMOVE
)

// Info describes an attached camera for the -list-cameras flag.
type Info struct {
	Index int
	Label string
}

// ListCameras enumerates the video input devices visible to the host.
// EnumerateDevices reads the mediadevices driver registry, which is only
// populated by the camera driver's blank import above.
func ListCameras() []Info {
	devices := mediadevices.EnumerateDevices()

	var cameras []Info
	for _, device := range devices {
		if device.Kind != mediadevices.VideoInput {
			continue
		}
		cameras = append(cameras, Info{
			Index: len(cameras),
			Label: device.Label,
		})
	}
	return cameras
}

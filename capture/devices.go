package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Device describes an available audio input device.
type Device struct {
	Name     string
	Channels int
	Default  bool
}

// Devices lists the input devices the host exposes, for settings surfaces.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer func() {
		_ = portaudio.Terminate()
	}()

	def, _ := portaudio.DefaultInputDevice()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var devices []Device
	for _, d := range infos {
		if d.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			Name:     d.Name,
			Channels: d.MaxInputChannels,
			Default:  def != nil && d.Name == def.Name,
		})
	}
	return devices, nil
}

package jtag

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes probe families.
type InterfaceKind string

const (
	InterfaceKindDirtyJTAG InterfaceKind = "dirtyjtag"
	InterfaceKindSim       InterfaceKind = "simulator"
)

// InterfaceInfo describes a detected probe.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// DiscoverInterfaces enumerates connected USB devices that match known
// DirtyJTAG VID/PID pairs. It always returns the simulator entry last so
// callers can run without hardware.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	// The callback only inspects descriptors, no device is opened.
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := classifyUSBDevice(desc); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, simulatorInterface)
	return results, nil
}

var simulatorInterface = InterfaceInfo{
	Kind:        InterfaceKindSim,
	Description: "Simulator (no hardware)",
}

func classifyUSBDevice(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	for _, known := range knownDirtyJTAGVIDPIDs {
		if uint16(desc.Vendor) == known.VendorID && uint16(desc.Product) == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindDirtyJTAG,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
				Bus:         desc.Bus,
				Address:     desc.Address,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownDirtyJTAGVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDDirtyJTAG, ProductID: ProductIDDirtyJTAG, Description: "DirtyJTAG (pico-dirtyJtag)"},
}

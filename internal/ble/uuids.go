package ble

// GATT UUIDs of the SmartPad vendor services.
const (
	// UARTServiceUUID carries commands and bulk stroke data.
	UARTServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"

	// UARTWriteCharUUID is the host-to-tablet command characteristic.
	UARTWriteCharUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"

	// UARTNotifyCharUUID is the tablet-to-host response and data channel.
	UARTNotifyCharUUID = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"

	// LiveServiceUUID streams real-time pen events.
	LiveServiceUUID  = "00001523-1212-efde-1523-785feabcd123"
	LivePenCharUUID  = "00001524-1212-efde-1523-785feabcd123"

	// OfflineServiceUUID carries the button-press notifications that
	// announce stored drawings.
	OfflineServiceUUID    = "ffee0001-bbaa-9988-7766-554433221100"
	OfflineButtonCharUUID = "ffee0003-bbaa-9988-7766-554433221100"

	// SyseventServiceUUID exists on Slate and Intuos Pro hardware but
	// not on Spark, which is how the family is told apart.
	SyseventServiceUUID = "3a340720-c572-11e5-86c5-0002a5d5c51b"
	SyseventCharUUID    = "3a340721-c572-11e5-86c5-0002a5d5c51b"
)

// WacomCompanyID is the Bluetooth SIG company identifier in SmartPad
// manufacturer data. Pairing mode advertises exactly four data bytes.
const WacomCompanyID = 0x4755

// InPairingMode reports whether an advertisement announces a device
// held in registration mode.
func InPairingMode(adv Advertisement) bool {
	data, ok := adv.Manufacturer[WacomCompanyID]
	return ok && len(data) == 4
}

// IsSmartPad reports whether the advertisement carries Wacom
// manufacturer data at all.
func IsSmartPad(adv Advertisement) bool {
	_, ok := adv.Manufacturer[WacomCompanyID]
	return ok
}

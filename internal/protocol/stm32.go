package protocol

// I2C address the ROM bootloader answers on
const BootloaderAddress = 0x64

// Memory map of the co-processor. Only flash is documented for the
// bootloader; RAM and system memory reads are best-effort.
const (
	FlashStart        = 0x08000000
	RAMStart          = 0x20000000
	SystemMemoryStart = 0x1FFF0000
)

// Transfer limits
const (
	MaxTransfer    = 256 // bytes per read/write command
	WriteAlignment = 4   // write address and length granularity
	VersionLength  = 20  // GET reply size on the I2C bootloader
	IDLength       = 3   // GET_ID reply size
)

// MassEraseArgument selects global mass erase for the erase command.
var MassEraseArgument = []byte{0xFF, 0xFF}
